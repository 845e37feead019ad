package serve

import (
	"net/http"
	"strings"
)

const (
	injectMaxBuffer = 512 * 1024
	reloadScriptTag = `<script async src="/__reload.js"></script></body>`
)

// withReloadScript injects the reload client script into HTML page responses.
// Non-HTML responses and pages larger than the buffer limit pass through
// untouched.
func withReloadScript(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		htmlPage := p == "/" || p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html")
		if !htmlPage {
			next.ServeHTTP(w, r)
			return
		}
		inj := &scriptInjector{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(inj, r)
		inj.finalize()
	})
}

// scriptInjector buffers an HTML response so the reload script can be placed
// before the closing body tag. Responses that turn out not to be HTML, or
// that outgrow the buffer, switch to passthrough.
type scriptInjector struct {
	http.ResponseWriter
	statusCode    int
	buffer        []byte
	headerWritten bool
	passthrough   bool
}

func (s *scriptInjector) WriteHeader(code int) {
	s.statusCode = code
	if s.passthrough {
		s.ResponseWriter.WriteHeader(code)
		s.headerWritten = true
	}
}

func (s *scriptInjector) Write(data []byte) (int, error) {
	if !s.headerWritten && !s.passthrough && s.buffer == nil {
		ct := s.ResponseWriter.Header().Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "text/html") {
			s.passthrough = true
			s.ResponseWriter.WriteHeader(s.statusCode)
			s.headerWritten = true
			return s.ResponseWriter.Write(data)
		}
		s.buffer = make([]byte, 0, 64*1024)
	}

	if s.passthrough {
		return s.ResponseWriter.Write(data)
	}

	if len(s.buffer)+len(data) > injectMaxBuffer {
		s.passthrough = true
		s.ResponseWriter.Header().Del("Content-Length")
		s.ResponseWriter.WriteHeader(s.statusCode)
		s.headerWritten = true
		if len(s.buffer) > 0 {
			if _, err := s.ResponseWriter.Write(s.buffer); err != nil {
				return 0, err
			}
		}
		return s.ResponseWriter.Write(data)
	}

	s.buffer = append(s.buffer, data...)
	return len(data), nil
}

func (s *scriptInjector) finalize() {
	if s.passthrough || len(s.buffer) == 0 {
		if !s.headerWritten {
			s.ResponseWriter.WriteHeader(s.statusCode)
		}
		return
	}

	html := string(s.buffer)
	modified := strings.Replace(html, "</body>", reloadScriptTag, 1)

	s.ResponseWriter.Header().Del("Content-Length")
	s.ResponseWriter.WriteHeader(s.statusCode)
	_, _ = s.ResponseWriter.Write([]byte(modified))
}
