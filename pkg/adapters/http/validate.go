package http

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var rawSpec []byte

// LoadSpec parses and validates the embedded API description.
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}
	return doc, nil
}

// validator rejects requests that do not match the API description.
// Paths it does not know fall through to the router's 404.
func (s *Server) validator(doc *openapi3.T) (func(http.Handler) http.Handler, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, err
	}
	opts := &openapi3filter.Options{
		MultiError:         false,
		ExcludeRequestBody: false,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, params, err := router.FindRoute(r)
			if err != nil {
				if errors.Is(err, routers.ErrMethodNotAllowed) {
					s.writeError(w, r, http.StatusMethodNotAllowed, MsgMethodNotAllowed, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			in := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: params,
				Route:      route,
				Options:    opts,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), in); err != nil {
				s.writeError(w, r, http.StatusBadRequest, validationMessage(err), err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func validationMessage(err error) string {
	var re *openapi3filter.RequestError
	if errors.As(err, &re) && re.RequestBody != nil {
		var se *openapi3.SchemaError
		if errors.As(err, &se) {
			return MsgMissingFields
		}
		return MsgInvalidBody
	}
	return MsgBadRequest
}
