package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"weekendwill/internal/domain"
	"weekendwill/internal/engine"
	"weekendwill/internal/engine/auth"
	"weekendwill/internal/interview"
	"weekendwill/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_executable"`
	Message string         `json:"message" example:"will is not eligible for execution"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Weekend Will API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// schema-level request errors are 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Weekend Will API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	flow := interview.Flow{Engine: cfg.Engine}

	registerDocs(router, basePath)
	registerHealth(group)
	registerWills(group, cfg.Engine)
	registerSections(group, cfg.Engine)
	registerPeople(group, cfg.Engine)
	registerAssets(group, cfg.Engine)
	registerChat(group, cfg.Engine)
	registerPhotos(group, cfg.Engine)
	registerDocuments(group, cfg.Engine)
	registerExecution(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerSearch(group, cfg.Engine)
	registerInterview(group, flow)
	registerBillingWebhook(group, cfg.Engine, cfg.Auth)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	var pe auth.PremiumRequiredError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusPaymentRequired, "premium_required", err.Error(), map[string]any{"feature": pe.Feature})
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		details := map[string]any{}
		if ve.Field != "" {
			details["field"] = ve.Field
		}
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), details)
	}
	var pre engine.PreconditionError
	if errors.As(err, &pre) {
		var details map[string]any
		if len(pre.Blockers) > 0 {
			details = map[string]any{"blockers": pre.Blockers}
		}
		return newAPIError(http.StatusConflict, "not_executable", err.Error(), details)
	}
	var vc engine.VersionConflictError
	if errors.As(err, &vc) {
		return newAPIError(http.StatusConflict, "version_conflict", err.Error(), map[string]any{"expected_version": vc.Expected})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "will not found", nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusPaymentRequired:
		return "premium_required"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// parseIfMatch reads an optional integer version from If-Match. Zero means
// no optimistic-lock check.
func parseIfMatch(value string) (int, huma.StatusError) {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil || v < 1 {
		return 0, newAPIError(http.StatusBadRequest, "bad_request", "If-Match must be a positive version number", nil)
	}
	return v, nil
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

type WillPath struct {
	WillID string `path:"will_id"`
}

type willBody struct {
	Body domain.Will `json:"body"`
}

func willOut(w domain.Will) *willBody {
	return &willBody{Body: w}
}

func registerWills(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-will",
		Method:        http.MethodPost,
		Path:          "/wills",
		Summary:       "Create will",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateWillRequest `json:"body"`
	}) (*willBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.CreateWill(ctx, p.UserID, input.Body.State, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return willOut(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-wills",
		Method:      http.MethodGet,
		Path:        "/wills",
		Summary:     "List my wills",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []WillSummary `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		wills, err := e.ListWills(ctx, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []WillSummary `json:"body"`
		}{Body: summarizeAll(wills)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-will",
		Method:      http.MethodGet,
		Path:        "/wills/{will_id}",
		Summary:     "Get will",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *WillPath) (*willBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.GetWill(ctx, input.WillID, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return willOut(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-will",
		Method:        http.MethodDelete,
		Path:          "/wills/{will_id}",
		Summary:       "Delete will",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *WillPath) (*struct{}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteWill(ctx, input.WillID, p.UserID, p.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSections(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "update-section",
		Method:      http.MethodPut,
		Path:        "/wills/{will_id}/sections/{section}",
		Summary:     "Replace one section",
		Description: "Replaces the named section wholesale and returns the will with recomputed progress. Pass If-Match with the last seen version to detect concurrent edits.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		WillID  string `path:"will_id"`
		Section string `path:"section"`
		IfMatch string `header:"If-Match"`
		RawBody []byte `contentType:"application/json"`
	}) (*willBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		version, verr := parseIfMatch(input.IfMatch)
		if verr != nil {
			return nil, verr
		}
		w, err := e.UpdateSection(ctx, input.WillID, p.UserID, p.UserID, input.Section, input.RawBody, version)
		if err != nil {
			return nil, handleError(err)
		}
		return willOut(w), nil
	})
}

func registerPeople(api huma.API, e engine.Engine) {
	type PersonTypePath struct {
		WillID     string `path:"will_id"`
		PersonType string `path:"person_type" enum:"executors,guardians"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "add-person",
		Method:        http.MethodPost,
		Path:          "/wills/{will_id}/people/{person_type}",
		Summary:       "Add executor or guardian",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		PersonTypePath
		Body PersonRequest `json:"body"`
	}) (*willBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.AddPerson(ctx, input.WillID, p.UserID, p.UserID, input.PersonType, input.Body.toDomain(""))
		if err != nil {
			return nil, handleError(err)
		}
		return willOut(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-person",
		Method:      http.MethodPut,
		Path:        "/wills/{will_id}/people/{person_type}/{person_id}",
		Summary:     "Update executor or guardian",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		PersonTypePath
		PersonID string        `path:"person_id"`
		Body     PersonRequest `json:"body"`
	}) (*willBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.UpdatePerson(ctx, input.WillID, p.UserID, p.UserID, input.PersonType, input.Body.toDomain(input.PersonID))
		if err != nil {
			return nil, handleError(err)
		}
		return willOut(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-person",
		Method:      http.MethodDelete,
		Path:        "/wills/{will_id}/people/{person_type}/{person_id}",
		Summary:     "Remove executor or guardian",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PersonTypePath
		PersonID string `path:"person_id"`
	}) (*willBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.RemovePerson(ctx, input.WillID, p.UserID, p.UserID, input.PersonType, input.PersonID)
		if err != nil {
			return nil, handleError(err)
		}
		return willOut(w), nil
	})
}

func registerAssets(api huma.API, e engine.Engine) {
	type AssetTypePath struct {
		WillID    string `path:"will_id"`
		AssetType string `path:"asset_type" enum:"real-property,personal-property"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "add-asset",
		Method:        http.MethodPost,
		Path:          "/wills/{will_id}/assets/{asset_type}",
		Summary:       "Add asset",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AssetTypePath
		Body AssetRequest `json:"body"`
	}) (*willBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.AddAsset(ctx, input.WillID, p.UserID, p.UserID, input.AssetType, input.Body.toDomain(""))
		if err != nil {
			return nil, handleError(err)
		}
		return willOut(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-asset",
		Method:      http.MethodPut,
		Path:        "/wills/{will_id}/assets/{asset_type}/{asset_id}",
		Summary:     "Update asset",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AssetTypePath
		AssetID string       `path:"asset_id"`
		Body    AssetRequest `json:"body"`
	}) (*willBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.UpdateAsset(ctx, input.WillID, p.UserID, p.UserID, input.AssetType, input.Body.toDomain(input.AssetID))
		if err != nil {
			return nil, handleError(err)
		}
		return willOut(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-asset",
		Method:      http.MethodDelete,
		Path:        "/wills/{will_id}/assets/{asset_type}/{asset_id}",
		Summary:     "Remove asset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssetTypePath
		AssetID string `path:"asset_id"`
	}) (*willBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.RemoveAsset(ctx, input.WillID, p.UserID, p.UserID, input.AssetType, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return willOut(w), nil
	})
}

func registerChat(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-chat-message",
		Method:        http.MethodPost,
		Path:          "/wills/{will_id}/chat",
		Summary:       "Append chat message",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		WillPath
		Body ChatMessageRequest `json:"body"`
	}) (*struct {
		Body domain.ChatMessage `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddChatMessage(ctx, input.WillID, p.UserID, p.UserID, input.Body.Role, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChatMessage `json:"body"`
		}{Body: m}, nil
	})
}

func registerPhotos(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-photo",
		Method:        http.MethodPost,
		Path:          "/wills/{will_id}/photos",
		Summary:       "Attach photo",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusPaymentRequired, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WillPath
		Body PhotoRequest `json:"body"`
	}) (*struct {
		Body domain.Photo `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		photo, err := e.AddPhoto(ctx, input.WillID, p.UserID, p.UserID, domain.Photo{
			URL:     input.Body.URL,
			Caption: input.Body.Caption,
			ItemIDs: input.Body.ItemIDs,
			Name:    input.Body.Name,
			Size:    input.Body.Size,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Photo `json:"body"`
		}{Body: photo}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-photo",
		Method:        http.MethodDelete,
		Path:          "/wills/{will_id}/photos/{photo_id}",
		Summary:       "Remove photo",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WillPath
		PhotoID string `path:"photo_id"`
	}) (*struct{}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemovePhoto(ctx, input.WillID, p.UserID, p.UserID, input.PhotoID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDocuments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "attach-document",
		Method:      http.MethodPut,
		Path:        "/wills/{will_id}/documents/{kind}",
		Summary:     "Record generated document",
		Description: "Stores the artifact reference produced by the PDF generation service.",
		Errors:      []int{http.StatusPaymentRequired, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		WillID string          `path:"will_id"`
		Kind   string          `path:"kind" enum:"will-pdf,wishes-pdf,execution-certificate"`
		Body   DocumentRequest `json:"body"`
	}) (*willBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.AttachDocument(ctx, input.WillID, p.UserID, p.UserID, input.Kind, domain.DocumentRef{
			URL:  input.Body.URL,
			Size: input.Body.Size,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return willOut(w), nil
	})
}

func registerExecution(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "execution-status",
		Method:      http.MethodGet,
		Path:        "/wills/{will_id}/execution-status",
		Summary:     "Execution eligibility",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *WillPath) (*struct {
		Body ExecutionStatusResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.GetWill(ctx, input.WillID, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		blockers, err := e.ExecutionBlockers(ctx, input.WillID, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ExecutionStatusResponse `json:"body"`
		}{Body: ExecutionStatusResponse{
			CanBeExecuted: w.CanBeExecuted(),
			Status:        w.Status,
			Blockers:      blockers,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execute-will",
		Method:      http.MethodPost,
		Path:        "/wills/{will_id}/execute",
		Summary:     "Execute will",
		Description: "Performs the completed to executed transition with the supplied witness payload. Fails without any write when the will is not eligible.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		WillPath
		Body domain.WitnessInfo `json:"body"`
	}) (*willBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.ExecuteWill(ctx, input.WillID, p.UserID, p.UserID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return willOut(w), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-will-events",
		Method:      http.MethodGet,
		Path:        "/wills/{will_id}/events",
		Summary:     "Will audit log",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WillPath
		Limit int `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// ownership check first so foreign wills stay invisible
		if _, err := e.Repo.GetWill(ctx, input.WillID, p.UserID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListEvents(ctx, input.Limit, input.WillID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func registerSearch(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "search-wills",
		Method:      http.MethodGet,
		Path:        "/search/wills",
		Summary:     "Search wills",
		Description: "Cross-user search requires the admin scope; everyone else is scoped to their own wills.",
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id"`
		Status string `query:"status" enum:"draft,completed,executed"`
		State  string `query:"state"`
		Page   int    `query:"page" default:"1" minimum:"1"`
		Limit  int    `query:"limit" default:"20" minimum:"1" maximum:"100"`
	}) (*struct {
		Body SearchResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID := input.UserID
		if !p.HasScope(ScopeAdmin) {
			userID = p.UserID
		}
		items, total, err := e.SearchWills(ctx, repo.WillFilters{
			UserID: userID,
			Status: input.Status,
			State:  input.State,
			Page:   input.Page,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		pages := 0
		if input.Limit > 0 {
			pages = (total + input.Limit - 1) / input.Limit
		}
		return &struct {
			Body SearchResponse `json:"body"`
		}{Body: SearchResponse{
			Wills: summarizeAll(items),
			Total: total,
			Page:  input.Page,
			Pages: pages,
		}}, nil
	})
}

func registerInterview(api huma.API, flow interview.Flow) {
	type stateBody struct {
		Body interview.State `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "start-interview",
		Method:        http.MethodPost,
		Path:          "/interview",
		Summary:       "Start interview",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateWillRequest `json:"body"`
	}) (*stateBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := flow.Start(ctx, p.UserID, input.Body.State, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &stateBody{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resume-interview",
		Method:      http.MethodGet,
		Path:        "/interview/{will_id}",
		Summary:     "Resume interview",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WillID string `path:"will_id"`
		Step   string `query:"step"`
		State  string `query:"state"`
	}) (*stateBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var st interview.State
		var err error
		if input.WillID == "new" {
			st, err = flow.Start(ctx, p.UserID, input.State, p.UserID)
		} else {
			st, err = flow.Load(ctx, input.WillID, p.UserID, input.Step)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &stateBody{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-interview-step",
		Method:      http.MethodPost,
		Path:        "/interview/{will_id}/steps/{step}",
		Summary:     "Submit interview step",
		Description: "Applies the step's section payloads in one atomic write. A failed submit leaves the stored will untouched.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		WillID string                 `path:"will_id"`
		Step   string                 `path:"step" enum:"personal-info,family,assets,distribution,executors"`
		Body   InterviewSubmitRequest `json:"body"`
	}) (*stateBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := flow.Submit(ctx, input.WillID, p.UserID, p.UserID, input.Step, input.Body.Sections, input.Body.Version)
		if err != nil {
			return nil, handleError(err)
		}
		return &stateBody{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "interview-step-back",
		Method:      http.MethodGet,
		Path:        "/interview/{will_id}/steps/{step}/back",
		Summary:     "Previous interview step",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WillID string `path:"will_id"`
		Step   string `path:"step"`
	}) (*stateBody, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := flow.Back(ctx, input.WillID, p.UserID, input.Step)
		if err != nil {
			return nil, handleError(err)
		}
		return &stateBody{Body: st}, nil
	})
}

func registerBillingWebhook(api huma.API, e engine.Engine, cfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "billing-webhook",
		Method:      http.MethodPost,
		Path:        "/webhooks/billing",
		Summary:     "Billing provider webhook",
		Description: "Updates a user's subscription state. Authenticated with the shared billing key.",
		Errors:      []int{http.StatusUnauthorized, http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Key  string                `header:"X-Billing-Key"`
		Body BillingWebhookRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if cfg.BillingKey == "" || input.Key != cfg.BillingKey {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid billing key", nil)
		}
		if input.Body.UserID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		sub := domain.Subscription{
			UserID:           input.Body.UserID,
			Status:           input.Body.Status,
			Plan:             input.Body.Plan,
			CurrentPeriodEnd: input.Body.CurrentPeriodEnd,
			UpdatedAt:        time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.UpsertSubscription(ctx, sub); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDevAuth(api huma.API, cfg AuthConfig) {
	if !cfg.DevLogin {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Dev login",
		Description: "Mints a short-lived JWT for local development. Disabled in production.",
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		if input.Body.UserID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		token, err := SignToken(cfg.JWTSecret, input.Body.UserID, input.Body.Scopes, 24*time.Hour)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token}}, nil
	})
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
			applyAuthSecurity(oas, basePath)
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

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
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
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join("/", basePath, "health"):           true,
		path.Join("/", basePath, "auth/dev/login"):   true,
		path.Join("/", basePath, "webhooks/billing"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
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
    <title>Weekend Will API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
