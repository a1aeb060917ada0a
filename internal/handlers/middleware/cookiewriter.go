package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// cookieWriter sets pending cookies right before the response is committed
type cookieWriter struct {
	http.ResponseWriter

	cookies   []*http.Cookie
	committed bool
}

func newCookieWriter(w http.ResponseWriter, cookies []*http.Cookie) *cookieWriter {
	return &cookieWriter{ResponseWriter: w, cookies: cookies}
}

func (w *cookieWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true

	for _, c := range w.cookies {
		http.SetCookie(w.ResponseWriter, c)
	}
}

func (w *cookieWriter) WriteHeader(statusCode int) {
	w.commit()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *cookieWriter) Write(p []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(p)
}

func (w *cookieWriter) Flush() {
	w.commit()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack hands the connection over, cookies are expected to be sent by the caller (see PendingCookies)
func (w *cookieWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	w.committed = true
	return h.Hijack()
}

func (w *cookieWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *cookieWriter) PendingCookies() []*http.Cookie {
	if w.committed {
		return nil
	}
	return w.cookies
}

type pendingCookier interface {
	PendingCookies() []*http.Cookie
}

type unwrapper interface {
	Unwrap() http.ResponseWriter
}

// PendingCookies returns refreshed session cookies not yet written to the response
// Handlers that hijack the connection (websocket upgrade) have to send them themselves
func PendingCookies(w http.ResponseWriter) []*http.Cookie {
	for w != nil {
		if p, ok := w.(pendingCookier); ok {
			return p.PendingCookies()
		}
		u, ok := w.(unwrapper)
		if !ok {
			return nil
		}
		w = u.Unwrap()
	}
	return nil
}
