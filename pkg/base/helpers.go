package base

// NewPlistResponse builds a 200 OK response carrying a binary-plist body,
// the content type used by GET /info, SETUP, /pair-pin-start and
// /pair-pin-confirm.
func NewPlistResponse(body []byte) *Response {
	return &Response{
		StatusCode: StatusOK,
		Header: Header{
			"Content-Type": HeaderValue{"application/x-apple-binary-plist"},
		},
		Body: body,
	}
}

// NewEmptyOK builds a bare 200 OK with no body, used by endpoints that only
// acknowledge (e.g. POST /feedback).
func NewEmptyOK() *Response {
	return &Response{StatusCode: StatusOK, Header: make(Header)}
}

// CloseConn marks res so the daemon disconnects right after sending it.
func CloseConn(res *Response) *Response {
	res.CloseAfterSend = true
	return res
}
