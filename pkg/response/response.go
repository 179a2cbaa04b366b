// Package response formats the send pipeline's HTTP bodies. Error
// responses use the {error, message} shape from spec.md §6/§7; success
// responses are written as whatever shape the endpoint specifies (a plain
// map or struct), since unlike the teacher's platform-wide {code,
// message, data} envelope, spec.md gives each endpoint its own success
// body (e.g. {success, jobId, messageId, recipients, status}).
package response

import (
	"github.com/gogf/gf/v2/net/ghttp"
)

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Pagination accompanies any {data[], pagination} list endpoint.
type Pagination struct {
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"perPage"`
	Pages   int `json:"pages"`
}

type Paged struct {
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// JSON writes data as-is with the given status code.
func JSON(r *ghttp.Request, status int, data any) {
	r.Response.Status = status
	r.Response.WriteJson(data)
}

// Paginated writes a {data, pagination} body with status 200.
func Paginated(r *ghttp.Request, data any, total, page, perPage int) {
	pages := total / perPage
	if total%perPage > 0 {
		pages++
	}
	JSON(r, 200, Paged{
		Data: data,
		Pagination: Pagination{
			Total:   total,
			Page:    page,
			PerPage: perPage,
			Pages:   pages,
		},
	})
}

func errOut(r *ghttp.Request, status int, errCode, message string) {
	r.Response.Status = status
	r.Response.WriteJsonExit(ErrorBody{Error: errCode, Message: message})
}

// BadRequest sends a 400 validation error.
func BadRequest(r *ghttp.Request, message string) {
	errOut(r, 400, "validation_error", message)
}

// Unauthorized sends a 401 auth error.
func Unauthorized(r *ghttp.Request, message string) {
	errOut(r, 401, "unauthorized", message)
}

// Forbidden sends a 403 tenancy error (unverified domain, FROM mismatch).
func Forbidden(r *ghttp.Request, message string) {
	errOut(r, 403, "forbidden", message)
}

// NotFound sends a 404 not-found error.
func NotFound(r *ghttp.Request, message string) {
	errOut(r, 404, "not_found", message)
}

// QuotaExceeded sends a 429 quota error.
func QuotaExceeded(r *ghttp.Request, message string) {
	errOut(r, 429, "quota_exceeded", message)
}

// InternalError sends a 500 internal error.
func InternalError(r *ghttp.Request, message string) {
	errOut(r, 500, "internal_error", message)
}

// Created writes data with status 201.
func Created(r *ghttp.Request, data any) {
	JSON(r, 201, data)
}

// OK writes data with status 200.
func OK(r *ghttp.Request, data any) {
	JSON(r, 200, data)
}
