package middlewares

// CtxRequestID is the gin context key the request id is stored under.
const CtxRequestID = "request_id"
