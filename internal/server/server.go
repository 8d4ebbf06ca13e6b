// Package server exposes the tracker over HTTP. Handlers translate wire
// input to engine calls; all rules live in the engine.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/TrXuk/open-medtracker-sub000/internal/apperr"
	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/engine"
	"github.com/TrXuk/open-medtracker-sub000/internal/repo"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Log      *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"unknown_zone"`
	Message string         `json:"message" example:"unknown zone identifier"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the medtrack API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("took", time.Since(start)))
		})
	})
	hcfg := huma.DefaultConfig("Medtrack API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMedications(group, cfg.Engine)
	registerSchedules(group, cfg.Engine)
	registerDoses(group, cfg.Engine)
	registerTransitions(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine error kinds onto the envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if kind, ok := apperr.KindOf(err); ok {
		var details map[string]any
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Field != "" {
			details = map[string]any{"field": ae.Field}
		}
		switch kind {
		case apperr.UnknownZone:
			return newAPIError(http.StatusBadRequest, "unknown_zone", err.Error(), details)
		case apperr.AmbiguousOrInvalidCivilTime:
			return newAPIError(http.StatusUnprocessableEntity, "ambiguous_civil_time", err.Error(), details)
		case apperr.BusinessRuleViolation:
			return newAPIError(http.StatusConflict, "conflict", err.Error(), details)
		case apperr.EmptyField, apperr.InvalidValue, apperr.InvalidRange, apperr.InvalidRelationship, apperr.InvalidDate:
			return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), details)
		case apperr.FetchFailed, apperr.SaveFailed, apperr.DeleteFailed:
			return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
		}
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Medtrack API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMedications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-medication",
		Method:        http.MethodPost,
		Path:          "/medications",
		Summary:       "Register medication",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			Name      string `json:"name"`
			Dosage    string `json:"dosage,omitempty"`
			StartDate string `json:"start_date"`
			EndDate   string `json:"end_date,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body MedicationResponse `json:"body"`
	}, error) {
		start, err := zoneclock.ParseCivilDate(input.Body.StartDate)
		if err != nil {
			return nil, handleError(err)
		}
		opts := engine.MedicationCreateOptions{
			Name:      input.Body.Name,
			Dosage:    input.Body.Dosage,
			StartDate: start,
		}
		if input.Body.EndDate != "" {
			end, err := zoneclock.ParseCivilDate(input.Body.EndDate)
			if err != nil {
				return nil, handleError(err)
			}
			opts.EndDate = &end
		}
		m, err := e.CreateMedication(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MedicationResponse `json:"body"`
		}{Body: medicationResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-medications",
		Method:      http.MethodGet,
		Path:        "/medications",
		Summary:     "List medications",
	}, func(ctx context.Context, input *struct {
		Active bool `query:"active" doc:"Only active medications"`
	}) (*struct {
		Body []MedicationResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListMedications(ctx, repo.MedicationFilters{ActiveOnly: input.Active})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MedicationResponse `json:"body"`
		}{Body: mapMedications(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-medication",
		Method:      http.MethodGet,
		Path:        "/medications/{medication_id}",
		Summary:     "Get medication",
	}, func(ctx context.Context, input *struct {
		MedicationID string `path:"medication_id"`
	}) (*struct {
		Body MedicationResponse `json:"body"`
	}, error) {
		m, err := e.Repo.GetMedication(ctx, input.MedicationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MedicationResponse `json:"body"`
		}{Body: medicationResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-medication",
		Method:      http.MethodPatch,
		Path:        "/medications/{medication_id}",
		Summary:     "Update medication",
	}, func(ctx context.Context, input *struct {
		MedicationID string `path:"medication_id"`
		Body         struct {
			Name    *string `json:"name,omitempty"`
			Dosage  *string `json:"dosage,omitempty"`
			EndDate *string `json:"end_date,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body MedicationResponse `json:"body"`
	}, error) {
		opts := engine.MedicationUpdateOptions{
			Name:   input.Body.Name,
			Dosage: input.Body.Dosage,
		}
		if input.Body.EndDate != nil {
			end, err := zoneclock.ParseCivilDate(*input.Body.EndDate)
			if err != nil {
				return nil, handleError(err)
			}
			opts.EndDate = &end
		}
		m, err := e.UpdateMedication(ctx, input.MedicationID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MedicationResponse `json:"body"`
		}{Body: medicationResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deactivate-medication",
		Method:      http.MethodPost,
		Path:        "/medications/{medication_id}/deactivate",
		Summary:     "Deactivate medication",
	}, func(ctx context.Context, input *struct {
		MedicationID string `path:"medication_id"`
		Body         struct {
			EndDate string `json:"end_date,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body MedicationResponse `json:"body"`
	}, error) {
		var endDate *zoneclock.CivilDate
		if input.Body.EndDate != "" {
			d, err := zoneclock.ParseCivilDate(input.Body.EndDate)
			if err != nil {
				return nil, handleError(err)
			}
			endDate = &d
		}
		m, err := e.DeactivateMedication(ctx, input.MedicationID, endDate)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MedicationResponse `json:"body"`
		}{Body: medicationResponse(m)}, nil
	})
}

func parseScheduleBody(kind, timeOfDay string, days []string, intervalSecs int64, anchor *time.Time) (domain.ScheduleKind, zoneclock.CivilTime, domain.DayMask, time.Duration, error) {
	k, err := domain.ParseScheduleKind(kind)
	if err != nil {
		return "", zoneclock.CivilTime{}, 0, 0, err
	}
	var tod zoneclock.CivilTime
	var mask domain.DayMask
	if k == domain.ScheduleTimeOfDay {
		if tod, err = zoneclock.ParseCivilTime(timeOfDay); err != nil {
			return "", zoneclock.CivilTime{}, 0, 0, err
		}
		if len(days) == 0 {
			mask = domain.DayMaskAll
		} else {
			for _, name := range days {
				d, err := parseWeekday(name)
				if err != nil {
					return "", zoneclock.CivilTime{}, 0, 0, err
				}
				mask |= domain.DayMaskOf(d)
			}
		}
	}
	return k, tod, mask, time.Duration(intervalSecs) * time.Second, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) || strings.EqualFold(d.String()[:3], name) {
			return d, nil
		}
	}
	return 0, apperr.Newf(apperr.InvalidValue, "days", "unknown weekday %q", name)
}

func registerSchedules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-schedule",
		Method:        http.MethodPost,
		Path:          "/schedules",
		Summary:       "Add schedule",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			MedicationID  string     `json:"medication_id"`
			Kind          string     `json:"kind"`
			ReferenceZone string     `json:"reference_zone"`
			TimeOfDay     string     `json:"time_of_day,omitempty"`
			Days          []string   `json:"days,omitempty"`
			IntervalSecs  int64      `json:"interval_secs,omitempty"`
			Anchor        *time.Time `json:"anchor,omitempty"`
			Enabled       *bool      `json:"enabled,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		kind, tod, mask, interval, err := parseScheduleBody(input.Body.Kind, input.Body.TimeOfDay, input.Body.Days, input.Body.IntervalSecs, input.Body.Anchor)
		if err != nil {
			return nil, handleError(err)
		}
		enabled := true
		if input.Body.Enabled != nil {
			enabled = *input.Body.Enabled
		}
		s, err := e.CreateSchedule(ctx, engine.ScheduleCreateOptions{
			MedicationID:  input.Body.MedicationID,
			Kind:          kind,
			ReferenceZone: input.Body.ReferenceZone,
			TimeOfDay:     tod,
			DayMask:       mask,
			Interval:      interval,
			Anchor:        input.Body.Anchor,
			Enabled:       enabled,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: scheduleResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-schedules",
		Method:      http.MethodGet,
		Path:        "/schedules",
		Summary:     "List schedules",
	}, func(ctx context.Context, input *struct {
		MedicationID string `query:"medication_id"`
		Enabled      bool   `query:"enabled" doc:"Only enabled schedules"`
	}) (*struct {
		Body []ScheduleResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListSchedules(ctx, repo.ScheduleFilters{
			MedicationID: input.MedicationID,
			EnabledOnly:  input.Enabled,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ScheduleResponse `json:"body"`
		}{Body: mapSchedules(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-schedule",
		Method:      http.MethodGet,
		Path:        "/schedules/{schedule_id}",
		Summary:     "Get schedule",
	}, func(ctx context.Context, input *struct {
		ScheduleID string `path:"schedule_id"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		s, err := e.Repo.GetSchedule(ctx, input.ScheduleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: scheduleResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-schedule",
		Method:      http.MethodPatch,
		Path:        "/schedules/{schedule_id}",
		Summary:     "Update schedule",
	}, func(ctx context.Context, input *struct {
		ScheduleID string `path:"schedule_id"`
		Body       struct {
			ReferenceZone *string    `json:"reference_zone,omitempty"`
			TimeOfDay     *string    `json:"time_of_day,omitempty"`
			Days          []string   `json:"days,omitempty"`
			IntervalSecs  *int64     `json:"interval_secs,omitempty"`
			Anchor        *time.Time `json:"anchor,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		opts := engine.ScheduleUpdateOptions{
			ReferenceZone: input.Body.ReferenceZone,
			Anchor:        input.Body.Anchor,
		}
		if input.Body.TimeOfDay != nil {
			tod, err := zoneclock.ParseCivilTime(*input.Body.TimeOfDay)
			if err != nil {
				return nil, handleError(err)
			}
			opts.TimeOfDay = &tod
		}
		if len(input.Body.Days) > 0 {
			var mask domain.DayMask
			for _, name := range input.Body.Days {
				d, err := parseWeekday(name)
				if err != nil {
					return nil, handleError(err)
				}
				mask |= domain.DayMaskOf(d)
			}
			opts.DayMask = &mask
		}
		if input.Body.IntervalSecs != nil {
			iv := time.Duration(*input.Body.IntervalSecs) * time.Second
			opts.Interval = &iv
		}
		s, err := e.UpdateSchedule(ctx, input.ScheduleID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: scheduleResponse(s)}, nil
	})

	setEnabled := func(enabled bool) func(ctx context.Context, input *struct {
		ScheduleID string `path:"schedule_id"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		return func(ctx context.Context, input *struct {
			ScheduleID string `path:"schedule_id"`
		}) (*struct {
			Body ScheduleResponse `json:"body"`
		}, error) {
			s, err := e.SetScheduleEnabled(ctx, input.ScheduleID, enabled)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body ScheduleResponse `json:"body"`
			}{Body: scheduleResponse(s)}, nil
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "enable-schedule",
		Method:      http.MethodPost,
		Path:        "/schedules/{schedule_id}/enable",
		Summary:     "Enable schedule",
	}, setEnabled(true))
	huma.Register(api, huma.Operation{
		OperationID: "disable-schedule",
		Method:      http.MethodPost,
		Path:        "/schedules/{schedule_id}/disable",
		Summary:     "Disable schedule",
	}, setEnabled(false))

	huma.Register(api, huma.Operation{
		OperationID: "next-occurrence",
		Method:      http.MethodGet,
		Path:        "/schedules/{schedule_id}/next",
		Summary:     "Next occurrence",
	}, func(ctx context.Context, input *struct {
		ScheduleID string     `path:"schedule_id"`
		After      *time.Time `query:"after"`
	}) (*struct {
		Body struct {
			Next *time.Time `json:"next"`
		} `json:"body"`
	}, error) {
		next, err := e.NextDose(ctx, input.ScheduleID, input.After)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Next *time.Time `json:"next"`
			} `json:"body"`
		}{}
		out.Body.Next = next
		return out, nil
	})
}

func registerDoses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate-doses",
		Method:        http.MethodPost,
		Path:          "/doses/generate",
		Summary:       "Generate dose records",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"body"`
	}) (*struct {
		Body []DoseResponse `json:"body"`
	}, error) {
		from, err := zoneclock.ParseCivilDate(input.Body.From)
		if err != nil {
			return nil, handleError(err)
		}
		to, err := zoneclock.ParseCivilDate(input.Body.To)
		if err != nil {
			return nil, handleError(err)
		}
		created, err := e.GenerateDoses(ctx, from, to)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DoseResponse `json:"body"`
		}{Body: mapDoses(created)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-doses",
		Method:      http.MethodGet,
		Path:        "/doses",
		Summary:     "List dose records",
	}, func(ctx context.Context, input *struct {
		ScheduleID   string     `query:"schedule_id"`
		MedicationID string     `query:"medication_id"`
		Status       string     `query:"status"`
		From         *time.Time `query:"from"`
		To           *time.Time `query:"to"`
		Limit        int        `query:"limit"`
	}) (*struct {
		Body []DoseResponse `json:"body"`
	}, error) {
		if input.Status != "" {
			if _, err := domain.ParseDoseStatus(input.Status); err != nil {
				return nil, handleError(err)
			}
		}
		items, err := e.Repo.ListDoses(ctx, repo.DoseFilters{
			ScheduleID:   input.ScheduleID,
			MedicationID: input.MedicationID,
			Status:       input.Status,
			From:         input.From,
			To:           input.To,
			Limit:        input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DoseResponse `json:"body"`
		}{Body: mapDoses(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-dose",
		Method:      http.MethodGet,
		Path:        "/doses/{dose_id}",
		Summary:     "Get dose record",
	}, func(ctx context.Context, input *struct {
		DoseID string `path:"dose_id"`
	}) (*struct {
		Body DoseResponse `json:"body"`
	}, error) {
		d, err := e.Repo.GetDose(ctx, input.DoseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DoseResponse `json:"body"`
		}{Body: doseResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "take-dose",
		Method:      http.MethodPost,
		Path:        "/doses/{dose_id}/take",
		Summary:     "Mark dose taken",
	}, func(ctx context.Context, input *struct {
		DoseID string `path:"dose_id"`
		Body   struct {
			TakenAt *time.Time `json:"taken_at,omitempty"`
			Zone    string     `json:"zone,omitempty"`
			Note    string     `json:"note,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body DoseResponse `json:"body"`
	}, error) {
		d, err := e.MarkTaken(ctx, input.DoseID, input.Body.TakenAt, input.Body.Zone, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DoseResponse `json:"body"`
		}{Body: doseResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "miss-dose",
		Method:      http.MethodPost,
		Path:        "/doses/{dose_id}/miss",
		Summary:     "Mark dose missed",
	}, func(ctx context.Context, input *struct {
		DoseID string `path:"dose_id"`
		Body   struct {
			Note string `json:"note,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body DoseResponse `json:"body"`
	}, error) {
		d, err := e.MarkMissed(ctx, input.DoseID, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DoseResponse `json:"body"`
		}{Body: doseResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "skip-dose",
		Method:      http.MethodPost,
		Path:        "/doses/{dose_id}/skip",
		Summary:     "Mark dose skipped",
	}, func(ctx context.Context, input *struct {
		DoseID string `path:"dose_id"`
		Body   struct {
			Note string `json:"note,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body DoseResponse `json:"body"`
	}, error) {
		d, err := e.MarkSkipped(ctx, input.DoseID, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DoseResponse `json:"body"`
		}{Body: doseResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-dose",
		Method:      http.MethodPost,
		Path:        "/doses/{dose_id}/reset",
		Summary:     "Reset dose to pending",
	}, func(ctx context.Context, input *struct {
		DoseID string `path:"dose_id"`
	}) (*struct {
		Body DoseResponse `json:"body"`
	}, error) {
		d, err := e.ResetDose(ctx, input.DoseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DoseResponse `json:"body"`
		}{Body: doseResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "log-dose",
		Method:        http.MethodPost,
		Path:          "/doses/log",
		Summary:       "Log an as-needed dose",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			MedicationID string     `json:"medication_id"`
			TakenAt      *time.Time `json:"taken_at,omitempty"`
			Zone         string     `json:"zone"`
			Note         string     `json:"note,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body DoseResponse `json:"body"`
	}, error) {
		d, err := e.LogAsNeededDose(ctx, input.Body.MedicationID, input.Body.TakenAt, input.Body.Zone, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DoseResponse `json:"body"`
		}{Body: doseResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "prune-doses",
		Method:      http.MethodPost,
		Path:        "/doses/prune",
		Summary:     "Prune old resolved records",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Deleted int64 `json:"deleted"`
		} `json:"body"`
	}, error) {
		n, err := e.PruneDoseHistory(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Deleted int64 `json:"deleted"`
			} `json:"body"`
		}{}
		out.Body.Deleted = n
		return out, nil
	})
}

type adjustmentRequest struct {
	Strategy    string            `json:"strategy"`
	GradualDays int               `json:"gradual_days,omitempty"`
	CustomTimes map[string]string `json:"custom_times,omitempty" doc:"Schedule ID to HH:MM"`
}

func parseAdjustmentRequest(body adjustmentRequest) (domain.AdjustmentStrategy, int, map[string]zoneclock.CivilTime, error) {
	strategy, err := domain.ParseAdjustmentStrategy(body.Strategy)
	if err != nil {
		return "", 0, nil, err
	}
	var custom map[string]zoneclock.CivilTime
	if len(body.CustomTimes) > 0 {
		custom = make(map[string]zoneclock.CivilTime, len(body.CustomTimes))
		for id, s := range body.CustomTimes {
			t, err := zoneclock.ParseCivilTime(s)
			if err != nil {
				return "", 0, nil, err
			}
			custom[id] = t
		}
	}
	return strategy, body.GradualDays, custom, nil
}

func registerTransitions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "detect-transition",
		Method:      http.MethodPost,
		Path:        "/transitions/detect",
		Summary:     "Report a zone-change candidate",
	}, func(ctx context.Context, input *struct {
		Body struct {
			PreviousZone string     `json:"previous_zone"`
			NewZone      string     `json:"new_zone"`
			OccurredAt   *time.Time `json:"occurred_at,omitempty"`
			Detection    string     `json:"detection,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body *PendingTransitionResponse `json:"body"`
	}, error) {
		detection := domain.DetectionManual
		if input.Body.Detection != "" {
			d, err := domain.ParseDetectionMethod(input.Body.Detection)
			if err != nil {
				return nil, handleError(err)
			}
			detection = d
		}
		var occurredAt time.Time
		if input.Body.OccurredAt != nil {
			occurredAt = *input.Body.OccurredAt
		}
		p, err := e.DetectTransition(ctx, input.Body.PreviousZone, input.Body.NewZone, occurredAt, detection)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body *PendingTransitionResponse `json:"body"`
		}{}
		if p != nil {
			resp := pendingResponse(*p)
			out.Body = &resp
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-pending-transition",
		Method:      http.MethodGet,
		Path:        "/transitions/pending",
		Summary:     "Get pending transition",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body *PendingTransitionResponse `json:"body"`
	}, error) {
		p, err := e.PendingTransition(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body *PendingTransitionResponse `json:"body"`
		}{}
		if p != nil {
			resp := pendingResponse(*p)
			out.Body = &resp
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "confirm-pending-transition",
		Method:        http.MethodPost,
		Path:          "/transitions/pending/confirm",
		Summary:       "Confirm pending transition",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		evt, err := e.ConfirmPending(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: transitionResponse(evt)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "discard-pending-transition",
		Method:        http.MethodDelete,
		Path:          "/transitions/pending",
		Summary:       "Discard pending transition",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		if err := e.DiscardPending(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "record-transition",
		Method:        http.MethodPost,
		Path:          "/transitions",
		Summary:       "Record a confirmed transition",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			PreviousZone string     `json:"previous_zone"`
			NewZone      string     `json:"new_zone"`
			OccurredAt   *time.Time `json:"occurred_at,omitempty"`
			Detection    string     `json:"detection,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		opts := engine.TransitionRecordOptions{
			PreviousZone: input.Body.PreviousZone,
			NewZone:      input.Body.NewZone,
			Detection:    domain.DetectionMethod(input.Body.Detection),
		}
		if input.Body.OccurredAt != nil {
			opts.OccurredAt = *input.Body.OccurredAt
		}
		evt, err := e.RecordTransition(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: transitionResponse(evt)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-transitions",
		Method:      http.MethodGet,
		Path:        "/transitions",
		Summary:     "List transitions",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []TransitionResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListTransitionEvents(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TransitionResponse `json:"body"`
		}{Body: mapTransitions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "propose-adjustments",
		Method:      http.MethodPost,
		Path:        "/transitions/{event_id}/propose",
		Summary:     "Propose schedule adjustments",
	}, func(ctx context.Context, input *struct {
		EventID string            `path:"event_id"`
		Body    adjustmentRequest `json:"body"`
	}) (*struct {
		Body []AdjustmentResponse `json:"body"`
	}, error) {
		strategy, days, custom, err := parseAdjustmentRequest(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		adjs, err := e.ProposeAdjustments(ctx, input.EventID, strategy, days, custom)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AdjustmentResponse `json:"body"`
		}{Body: mapAdjustments(adjs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-adjustments",
		Method:      http.MethodPost,
		Path:        "/transitions/{event_id}/apply",
		Summary:     "Apply schedule adjustments",
	}, func(ctx context.Context, input *struct {
		EventID string            `path:"event_id"`
		Body    adjustmentRequest `json:"body"`
	}) (*struct {
		Body []AdjustmentResponse `json:"body"`
	}, error) {
		strategy, days, custom, err := parseAdjustmentRequest(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		adjs, err := e.ApplyAdjustments(ctx, input.EventID, strategy, days, custom)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AdjustmentResponse `json:"body"`
		}{Body: mapAdjustments(adjs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "associate-doses",
		Method:      http.MethodPost,
		Path:        "/transitions/{event_id}/associate",
		Summary:     "Associate nearby pending doses",
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct {
		Body struct {
			Linked int `json:"linked"`
		} `json:"body"`
	}, error) {
		n, err := e.AssociateAffectedDoses(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Linked int `json:"linked"`
			} `json:"body"`
		}{}
		out.Body.Linked = n
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-adjustments",
		Method:      http.MethodGet,
		Path:        "/transitions/{event_id}/adjustments",
		Summary:     "List applied adjustments",
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct {
		Body []AdjustmentResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListAdjustmentsByEvent(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AdjustmentResponse `json:"body"`
		}{Body: mapAdjustments(items)}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "adherence-report",
		Method:      http.MethodGet,
		Path:        "/reports/adherence",
		Summary:     "Adherence report",
	}, func(ctx context.Context, input *struct {
		From         time.Time `query:"from" required:"true"`
		To           time.Time `query:"to" required:"true"`
		MedicationID string    `query:"medication_id"`
	}) (*struct {
		Body AdherenceResponse `json:"body"`
	}, error) {
		rep, err := e.Adherence(ctx, input.From, input.To, input.MedicationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AdherenceResponse `json:"body"`
		}{Body: adherenceResponse(rep)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
