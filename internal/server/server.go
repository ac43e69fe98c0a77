package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"partnertrack/internal/domain"
	"partnertrack/internal/engine"
	"partnertrack/internal/export"
	"partnertrack/internal/query"
	"partnertrack/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Log      *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task 42: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the partnertrack API.
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
		log = cfg.Engine.Log
	}
	if log == nil {
		log = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// schema/request validation errors are reported as 400
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(log))
	hcfg := huma.DefaultConfig("partnertrack API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{e: cfg.Engine, log: log}
	registerDocs(router, basePath)
	registerHealth(group)
	registerPartners(group, h)
	registerTasks(group, h)
	registerAssignments(group, h)
	registerRecurring(group, h)
	registerDashboard(group, h)
	registerExport(group, h)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

type handlers struct {
	e   engine.Engine
	log *slog.Logger
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.DebugContext(r.Context(), "request", slog.String("method", r.Method), slog.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}
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

func badRequest(msg string) huma.StatusError {
	return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, engine.ErrDuplicateCode):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case errors.Is(err, engine.ErrValidation):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	case errors.Is(err, store.ErrPersist):
		return newAPIError(http.StatusInternalServerError, "persist_failed", "state updated but could not be saved", map[string]any{"error": msg})
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
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

func parseCategory(s string) (domain.TaskCategory, huma.StatusError) {
	c, err := domain.ParseCategory(s)
	if err != nil {
		return "", badRequest(err.Error())
	}
	return c, nil
}

func parseDeadline(s string) (domain.Date, huma.StatusError) {
	d, err := domain.ParseDate(s)
	if err != nil {
		return domain.Date{}, badRequest(fmt.Sprintf("invalid deadline %q: want YYYY-MM-DD", s))
	}
	return d, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>partnertrack API Docs</title>
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

func registerPartners(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-partners",
		Method:      http.MethodGet,
		Path:        "/partners",
		Summary:     "List partners ordered by code",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PartnerResponse `json:"body"`
	}, error) {
		return &struct {
			Body []PartnerResponse `json:"body"`
		}{Body: mapPartners(h.e.State().Partners)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-partner",
		Method:        http.MethodPost,
		Path:          "/partners",
		Summary:       "Register a partner office",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreatePartnerRequest `json:"body"`
	}) (*struct {
		Body PartnerResponse `json:"body"`
	}, error) {
		p, err := h.e.AddPartner(ctx, input.Body.Code, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PartnerResponse `json:"body"`
		}{Body: partnerResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-partner",
		Method:      http.MethodPut,
		Path:        "/partners/{id}",
		Summary:     "Update a partner",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdatePartnerRequest `json:"body"`
	}) (*struct {
		Body PartnerResponse `json:"body"`
	}, error) {
		p, err := h.e.UpdatePartner(ctx, engine.PartnerUpdate{ID: input.ID, Code: input.Body.Code, Name: input.Body.Name})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PartnerResponse `json:"body"`
		}{Body: partnerResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-partner",
		Method:        http.MethodDelete,
		Path:          "/partners/{id}",
		Summary:       "Delete a partner; its task assignments are kept",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := h.e.DeletePartner(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks by archive flag and category, ordered by deadline",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Archived bool   `query:"archived" doc:"List archived tasks instead of active ones"`
		Category string `query:"category" default:"ALL" doc:"研修, TPS, その他 or ALL"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		cat, perr := parseCategory(input.Category)
		if perr != nil {
			return nil, perr
		}
		items := query.FilterTasks(h.e.State(), input.Archived, cat)
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a task assigned to partners",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		cat := domain.CategoryOther
		if input.Body.Category != "" {
			var perr huma.StatusError
			if cat, perr = parseCategory(input.Body.Category); perr != nil {
				return nil, perr
			}
		}
		deadline, perr := parseDeadline(input.Body.Deadline)
		if perr != nil {
			return nil, perr
		}
		t, err := h.e.CreateTask(ctx, engine.TaskCreateOptions{
			Title:      input.Body.Title,
			Category:   cat,
			Deadline:   deadline,
			PartnerIDs: input.Body.PartnerIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, ok := query.FindTask(h.e.State(), input.ID)
		if !ok {
			return nil, handleError(fmt.Errorf("task %s: %w", input.ID, engine.ErrNotFound))
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update title, category or deadline",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		opts := engine.TaskUpdateOptions{ID: input.ID, Title: input.Body.Title}
		if input.Body.Category != nil {
			cat, perr := parseCategory(*input.Body.Category)
			if perr != nil {
				return nil, perr
			}
			if cat == domain.CategoryAll {
				return nil, badRequest("category is required")
			}
			opts.Category = &cat
		}
		if input.Body.Deadline != nil {
			d, perr := parseDeadline(*input.Body.Deadline)
			if perr != nil {
				return nil, perr
			}
			opts.Deadline = &d
		}
		t, err := h.e.UpdateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := h.e.DeleteTask(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/archive",
		Summary:     "Archive task",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := h.e.ArchiveTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}

func registerAssignments(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "search-assignments",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/assignments",
		Summary:     "List a task's assignments, incomplete first, filtered by partner name or code",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
		Q  string `query:"q"`
	}) (*struct {
		Body []AssignmentViewResponse `json:"body"`
	}, error) {
		state := h.e.State()
		t, ok := query.FindTask(state, input.ID)
		if !ok {
			return nil, handleError(fmt.Errorf("task %s: %w", input.ID, engine.ErrNotFound))
		}
		return &struct {
			Body []AssignmentViewResponse `json:"body"`
		}{Body: mapAssignmentViews(query.SearchAssignments(t, state.Partners, input.Q))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-assignment",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/assignments/{partner_id}/toggle",
		Summary:     "Flip a partner's completion on a task",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		PartnerID string `path:"partner_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := h.e.ToggleAssignment(ctx, input.ID, input.PartnerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}

func registerRecurring(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-recurring",
		Method:      http.MethodGet,
		Path:        "/recurring",
		Summary:     "List recurring templates ordered by trigger month",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []RecurringResponse `json:"body"`
	}, error) {
		return &struct {
			Body []RecurringResponse `json:"body"`
		}{Body: mapRecurring(query.RecurringByMonth(h.e.State()))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-recurring",
		Method:        http.MethodPost,
		Path:          "/recurring",
		Summary:       "Add a recurring template",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateRecurringRequest `json:"body"`
	}) (*struct {
		Body RecurringResponse `json:"body"`
	}, error) {
		cat := domain.CategoryOther
		if input.Body.Category != "" {
			var perr huma.StatusError
			if cat, perr = parseCategory(input.Body.Category); perr != nil {
				return nil, perr
			}
		}
		r, err := h.e.AddRecurring(ctx, engine.RecurringCreateOptions{
			Title:        input.Body.Title,
			Category:     cat,
			TriggerMonth: input.Body.TriggerMonth,
			Description:  input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RecurringResponse `json:"body"`
		}{Body: recurringResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-recurring",
		Method:        http.MethodDelete,
		Path:          "/recurring/{id}",
		Summary:       "Delete a recurring template",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := h.e.DeleteRecurring(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "draft-from-recurring",
		Method:      http.MethodGet,
		Path:        "/recurring/{id}/draft",
		Summary:     "Pre-fill a task from a template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Year int    `query:"year" doc:"Deadline year; defaults to the current year"`
	}) (*struct {
		Body DraftResponse `json:"body"`
	}, error) {
		d, err := h.e.DraftFromTemplate(input.ID, input.Year)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DraftResponse `json:"body"`
		}{Body: draftResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "apply-recurring",
		Method:        http.MethodPost,
		Path:          "/recurring/{id}/tasks",
		Summary:       "Create a task from a template",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body ApplyTemplateRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		var deadline domain.Date
		if input.Body.Deadline != nil {
			d, perr := parseDeadline(*input.Body.Deadline)
			if perr != nil {
				return nil, perr
			}
			deadline = d
		}
		t, err := h.e.CreateTaskFromTemplate(ctx, input.ID, input.Body.Year, input.Body.PartnerIDs, deadline)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}

func registerDashboard(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Active, urgent and recent task overview",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body DashboardResponse `json:"body"`
	}, error) {
		return &struct {
			Body DashboardResponse `json:"body"`
		}{Body: dashboardResponse(h.e.Dashboard())}, nil
	})
}

func registerExport(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "export-incomplete",
		Method:      http.MethodGet,
		Path:        "/export/incomplete.csv",
		Summary:     "CSV of partners with unfinished assignments on active tasks",
		Responses: map[string]*huma.Response{
			"200": {
				Description: "UTF-8 CSV with BOM",
				Content:     map[string]*huma.MediaType{"text/csv": {}},
			},
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		var buf bytes.Buffer
		rows := export.IncompleteRows(h.e.State())
		if err := export.WriteCSV(&buf, rows); err != nil {
			return nil, handleError(err)
		}
		name := export.Filename(h.e.Clock())
		h.log.InfoContext(ctx, "export generated", slog.Int("rows", len(rows)), slog.String("file", name))
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        "text/csv; charset=utf-8",
			ContentDisposition: contentDisposition(name),
			Body:               buf.Bytes(),
		}, nil
	})
}

// contentDisposition sets an ASCII fallback plus the RFC 5987 UTF-8 file name.
func contentDisposition(name string) string {
	return fmt.Sprintf(`attachment; filename="export.csv"; filename*=UTF-8''%s`, url.PathEscape(name))
}
