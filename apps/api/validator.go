package main

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	"github.com/zenGate-Global/nuzum-saas/contracts"
	platformmiddleware "github.com/zenGate-Global/nuzum-saas/platform/go/middleware"
	"github.com/zenGate-Global/nuzum-saas/platform/go/problem"
)

// newContractValidator builds the request validator for the admin contract. It runs after the
// JWT middleware so bearerAuth operations can see the parsed credentials.
func newContractValidator(logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	spec, err := contracts.Admin()
	if err != nil {
		return nil, err
	}
	logSecuritySchemes(logger, spec)

	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: platformmiddleware.ValidateAuthenticationViaSwagger,
		},
		ErrorHandler: writeContractError,
	}), nil
}

func writeContractError(w http.ResponseWriter, message string, statusCode int) {
	switch statusCode {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
		problem.Write(w, problem.New(statusCode, problem.CodeUnauthenticated, "Unauthorized", message))
	case http.StatusNotFound:
		problem.Write(w, problem.New(statusCode, problem.CodeNotFound, "Not Found", message))
	default:
		problem.Write(w, problem.New(statusCode, problem.CodeValidation, "Request does not match the API contract", message))
	}
}

func logSecuritySchemes(logger *zap.Logger, spec *openapi3.T) {
	if spec.Components == nil {
		return
	}
	for name := range spec.Components.SecuritySchemes {
		logger.Debug("contract security scheme", zap.String("scheme", name))
	}
}
