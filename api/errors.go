package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"xdao.co/certanchor/cert"
)

var kindStatus = map[cert.Kind]int{
	cert.KindInvalidTransition:  http.StatusConflict,
	cert.KindMissingReason:      http.StatusBadRequest,
	cert.KindMissingFields:      http.StatusUnprocessableEntity,
	cert.KindNetwork:            http.StatusBadGateway,
	cert.KindInsufficientFunds:  http.StatusPaymentRequired,
	cert.KindUserRejected:       http.StatusForbidden,
	cert.KindNotAnchored:        http.StatusNotFound,
	cert.KindNotFound:           http.StatusNotFound,
	cert.KindContentUnavailable: http.StatusBadGateway,
	cert.KindGeneric:            http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	if s, ok := kindStatus[cert.KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Kind    cert.Kind `json:"kind"`
	Message string    `json:"message"`
	Fields  []string  `json:"fields,omitempty"`
}

func writeError(c *gin.Context, err error) {
	abortError(c, StatusFor(err), err)
}

func abortError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": requestID(c),
		"error": errorBody{
			Kind:    cert.KindOf(err),
			Message: cert.UserMessage(err),
			Fields:  cert.FieldsOf(err),
		},
	})
}

func badRequest(c *gin.Context, msg string) {
	abortError(c, http.StatusBadRequest, cert.NewError(cert.KindGeneric, msg))
}
