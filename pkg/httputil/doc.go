// Package httputil provides the JSON request and response helpers and the
// generic middleware shared by every handler.
//
//	var req customers.CreateCustomerRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	page, ok := httputil.ParsePageOrError(w, r)
//
// Middleware is applied through the router:
//
//	router.Use(httputil.RequestIDMiddleware, httputil.LoggingMiddleware(logger))
package httputil
