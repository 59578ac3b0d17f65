package server

import (
	"bytes"
	"context"
	"encoding/hex"
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
	"github.com/danielgtaylor/huma/v2/conditional"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"sprintbook/internal/app"
	"sprintbook/internal/domain"
	"sprintbook/internal/engine"
	"sprintbook/internal/export"
	"sprintbook/internal/provision"
	"sprintbook/internal/repo"
	"sprintbook/internal/slots"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Identity IdentityConfig
	Log      *zap.Logger
}

// apiError is the error envelope every failing request answers with.
type apiError struct {
	status  int
	Message string   `json:"error" example:"sprint 2 already taken by another tribe"`
	Code    string   `json:"code" example:"slot_conflict"`
	Details []string `json:"details,omitempty" example:"[\"S2\"]"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// New returns an HTTP handler exposing the booking API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = cfg.Engine.Log
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Identity.Log == nil {
		cfg.Identity.Log = log
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, errorStrings(errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request schema failures are the caller's fault, not a cap verdict
			status = http.StatusBadRequest
		}
		return newAPIError(status, "", msg, errorStrings(errs))
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(log))
	router.Use(newIdentityMiddleware(cfg.Identity))
	router.Handle("/metrics", cfg.Engine.Metrics.Handler())

	hcfg := huma.DefaultConfig("Sprintbook API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAssignments(group, cfg.Engine)
	registerAvailability(group, cfg.Engine)
	registerTemps(group, cfg.Engine, basePath)
	registerExport(group, cfg.Engine)
	registerQuarters(group, cfg.Engine)
	registerProvision(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details []string) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status:  status,
		Message: message,
		Code:    code,
		Details: details,
	}
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}

// handleError maps engine errors onto the envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var (
		conflict   *engine.SlotConflictError
		validation *engine.ValidationError
	)
	switch engine.Kind(err) {
	case engine.KindSlotConflict:
		errors.As(err, &conflict)
		return newAPIError(http.StatusConflict, engine.KindSlotConflict, err.Error(), conflict.Details())
	case engine.KindCapExceeded:
		return newAPIError(http.StatusUnprocessableEntity, engine.KindCapExceeded, err.Error(), nil)
	case engine.KindValidation:
		errors.As(err, &validation)
		return newAPIError(http.StatusBadRequest, engine.KindValidation, validation.Message, validation.Details)
	case engine.KindNotFound:
		return newAPIError(http.StatusNotFound, engine.KindNotFound, err.Error(), nil)
	case engine.KindTransient:
		return newAPIError(http.StatusServiceUnavailable, engine.KindTransient, "storage busy, retry with fresh availability", []string{err.Error()})
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", []string{err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return engine.KindValidation
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return engine.KindNotFound
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusServiceUnavailable:
		return engine.KindTransient
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
			)
		})
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
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyIdentitySecurity(oas)
			spec, _ = json.Marshal(oas)
		}
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

// applyIdentitySecurity documents the two ways to name the acting tribe.
// Both are optional on reads.
func applyIdentitySecurity(oas *huma.OpenAPI) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["tribeHeader"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: TribeHeader,
	}
	oas.Security = []map[string][]string{
		{"bearerAuth": {}},
		{"tribeHeader": {}},
		{},
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Sprintbook API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Name the acting tribe with X-Tribe or Authorization: Bearer &lt;token&gt;.
    </p>
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

type assignmentQuery struct {
	Quarter  string `query:"quarter" doc:"Quarter id or name; the current quarter when empty"`
	Tribe    string `query:"tribe"`
	App      string `query:"app"`
	Resource string `query:"resource"`
	Role     string `query:"role"`
	Type     string `query:"type"`
}

func (q assignmentQuery) filters(quarterID string) repo.AssignmentFilters {
	return repo.AssignmentFilters{
		QuarterID: quarterID,
		Tribe:     q.Tribe,
		App:       q.App,
		Resource:  q.Resource,
		Role:      q.Role,
		Type:      q.Type,
	}
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-assignments",
		Method:      http.MethodGet,
		Path:        "/assignments",
		Summary:     "List assignments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *assignmentQuery) (*struct {
		Body AssignmentList `json:"body"`
	}, error) {
		q, err := app.ResolveQuarter(ctx, e.Repo, input.Quarter)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAssignments(ctx, input.filters(q.ID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentList `json:"body"`
		}{Body: AssignmentList{Items: mapAssignments(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/assignments/{id}",
		Summary:     "Get assignment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetAssignment(ctx, input.ID)
		if err != nil {
			return nil, handleError(fmt.Errorf("assignment %s: %w", input.ID, err))
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-assignment-slots",
		Method:      http.MethodPatch,
		Path:        "/assignments/{id}",
		Summary:     "Commit an assignment's sprint slots",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateSlotsRequest
	}) (*struct {
		Body CommitResponse `json:"body"`
	}, error) {
		tribe, authErr := tribeFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CommitSlotsPatch(ctx, input.ID, input.Body.Apply, tribe)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommitResponse `json:"body"`
		}{Body: CommitResponse{Assignment: assignmentResponse(res.Assignment), Unchanged: res.Unchanged}}, nil
	})
}

// etagFor fingerprints an availability body; equal snapshots give equal tags.
func etagFor(body AvailabilityResponse) string {
	data, _ := json.Marshal(body)
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

func registerAvailability(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-availability",
		Method:      http.MethodGet,
		Path:        "/availability",
		Summary:     "Availability for a tribe on a resource/role",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		conditional.Params
		Quarter      string `query:"quarter"`
		Tribe        string `query:"tribe" doc:"Defaults to the acting tribe"`
		ResourceName string `query:"resource_name"`
		Role         string `query:"role"`
	}) (*struct {
		ETag         string `header:"ETag"`
		CacheControl string `header:"Cache-Control"`
		Body         AvailabilityResponse
	}, error) {
		tribe := strings.TrimSpace(input.Tribe)
		if tribe == "" {
			if id, ok := identityFromContext(ctx); ok {
				tribe = id.Tribe
			}
		}
		q, err := app.ResolveQuarter(ctx, e.Repo, input.Quarter)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Availability(ctx, q.ID, slots.TribeKey{
			Tribe:        tribe,
			ResourceName: strings.TrimSpace(input.ResourceName),
			Role:         strings.TrimSpace(input.Role),
		})
		if err != nil {
			return nil, handleError(err)
		}
		body := availabilityResponse(res)
		etag := etagFor(body)
		if input.HasConditionalParams() {
			if err := input.PreconditionFailed(etag, time.Time{}); err != nil {
				return nil, err
			}
		}
		maxAge := 5
		if e.Config != nil {
			maxAge = int(e.Config.AvailabilityMaxAge() / time.Second)
		}
		return &struct {
			ETag         string `header:"ETag"`
			CacheControl string `header:"Cache-Control"`
			Body         AvailabilityResponse
		}{
			ETag:         `"` + etag + `"`,
			CacheControl: fmt.Sprintf("private, max-age=%d", maxAge),
			Body:         body,
		}, nil
	})
}

func registerTemps(api huma.API, e engine.Engine, basePath string) {
	huma.Register(api, huma.Operation{
		OperationID: "list-temp-assignments",
		Method:      http.MethodGet,
		Path:        "/temp-assignments",
		Summary:     "List temp holds",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Quarter  string `query:"quarter"`
		Tribe    string `query:"tribe"`
		App      string `query:"app"`
		Resource string `query:"resource"`
		Role     string `query:"role"`
		Type     string `query:"type"`
	}) (*struct {
		Body TempList `json:"body"`
	}, error) {
		q, err := app.ResolveQuarter(ctx, e.Repo, input.Quarter)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListTempAssignments(ctx, repo.TempFilters{
			QuarterID: q.ID,
			Tribe:     input.Tribe,
			App:       input.App,
			Resource:  input.Resource,
			Role:      input.Role,
			Type:      input.Type,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TempList `json:"body"`
		}{Body: TempList{Items: mapTemps(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-temp-assignment",
		Method:      http.MethodGet,
		Path:        "/temp-assignments/{id}",
		Summary:     "Temp hold with live availability",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TempDetailResponse `json:"body"`
	}, error) {
		detail, err := e.TempDetail(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TempDetailResponse `json:"body"`
		}{Body: tempDetailResponse(detail)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "book-temp",
		Method:      http.MethodPost,
		Path:        "/book-temp/{tempId}",
		Summary:     "Confirm a booking against a temp hold",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		TempID string `path:"tempId"`
		Body   BookTempRequest
	}) (*struct {
		Body BookTempResponse `json:"body"`
	}, error) {
		tribe, authErr := tribeFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ConfirmBooking(ctx, input.TempID, input.Body.Sprints, tribe)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BookTempResponse `json:"body"`
		}{Body: BookTempResponse{
			OK:         true,
			Assignment: assignmentResponse(res.Assignment),
			Unchanged:  res.Unchanged,
			Redirect:   path.Join(basePath, "assignments", res.Assignment.ID),
		}}, nil
	})
}

func registerExport(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "export-assignments",
		Method:      http.MethodGet,
		Path:        "/export",
		Summary:     "Download filtered assignments",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		assignmentQuery
		Format string `query:"format" enum:"csv,json" default:"csv"`
	}) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		format, err := export.ParseFormat(input.Format)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "", err.Error(), nil)
		}
		q, err := app.ResolveQuarter(ctx, e.Repo, input.Quarter)
		if err != nil {
			return nil, handleError(err)
		}
		rows, err := e.ExportRows(ctx, input.filters(q.ID))
		if err != nil {
			return nil, handleError(err)
		}
		var buf bytes.Buffer
		if err := export.WriteAssignments(&buf, rows, format); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        format.ContentType(),
			ContentDisposition: fmt.Sprintf(`attachment; filename="assignments-%s.%s"`, q.Name, format),
			Body:               buf.Bytes(),
		}, nil
	})
}

func registerQuarters(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-quarters",
		Method:      http.MethodGet,
		Path:        "/quarters",
		Summary:     "List quarters",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body QuarterList `json:"body"`
	}, error) {
		items, err := e.Repo.ListQuarters(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		resp := QuarterList{Items: items}
		for _, q := range items {
			if q.IsCurrent {
				resp.Current = q.Name
			}
		}
		return &struct {
			Body QuarterList `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-current-quarter",
		Method:      http.MethodPost,
		Path:        "/quarters/current",
		Summary:     "Make a quarter current, creating it when new",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SetQuarterRequest
	}) (*struct {
		Body domain.Quarter `json:"body"`
	}, error) {
		q, err := e.SetCurrentQuarter(ctx, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Quarter `json:"body"`
		}{Body: q}, nil
	})
}

func registerProvision(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-provisioning",
		Method:      http.MethodPost,
		Path:        "/provision/validate",
		Summary:     "Check a provisioning sheet without importing it",
	}, func(ctx context.Context, input *struct {
		Body ProvisionRequest
	}) (*struct {
		Body provision.Validation `json:"body"`
	}, error) {
		return &struct {
			Body provision.Validation `json:"body"`
		}{Body: provision.Check(input.Body.Rows)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-provisioning",
		Method:      http.MethodPost,
		Path:        "/provision",
		Summary:     "Import a provisioning sheet into the quarter's temp holds",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Quarter string `query:"quarter"`
		Body    ProvisionRequest
	}) (*struct {
		Body ProvisionResponse `json:"body"`
	}, error) {
		q, err := app.ResolveQuarter(ctx, e.Repo, input.Quarter)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.ImportTempAssignments(ctx, q.ID, input.Body.Rows, input.Body.Replace)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProvisionResponse `json:"body"`
		}{Body: ProvisionResponse{
			Validation: res.Validation,
			Imported:   res.Imported,
			Cleared:    res.Cleared,
			Archived:   res.Archived,
		}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent booking events",
	}, func(ctx context.Context, input *struct {
		Type     string `query:"type"`
		EntityID string `query:"entity_id"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body struct {
			Items []domain.Event `json:"items"`
		} `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.Type, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.Event `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		return out, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}
