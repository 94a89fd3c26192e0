// Package api handles incoming HTTP requests, request validation and response
// formatting. It adapts the request gateway to the JSON endpoints used by
// calling applications, and streams job status over websockets.
package api
