package mockserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/covenant-oss/covenant/internal/app/generators"
	"github.com/covenant-oss/covenant/internal/app/matchers"
	"github.com/covenant-oss/covenant/internal/app/pactfile"
	"github.com/covenant-oss/covenant/internal/app/value"
)

// Server hosts one pact's interactions on a dedicated port. The pact is
// a snapshot taken at start; later edits to the source document do not
// reach a running server.
type Server struct {
	pact *pactfile.Pact
	port int
	tls  bool

	listener   net.Listener
	httpServer *http.Server
	genCtx     *generators.Context

	mu       sync.Mutex
	outcomes []Outcome
	hits     map[int]bool
	stopped  bool
}

func newServer(pact *pactfile.Pact, seed int64) *Server {
	return &Server{
		pact:   pact,
		genCtx: generators.NewContext(seed),
		hits:   map[int]bool{},
	}
}

// start binds the listener and begins serving. Port 0 asks the kernel
// for a free port; the bound port is recorded on the server.
func (s *Server) start(host string, port int, useTLS bool) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return errors.Wrapf(ErrBindFailure, "%s:%d: %v", host, port, err)
	}
	if useTLS {
		config, err := selfSignedConfig()
		if err != nil {
			listener.Close()
			return errors.Wrap(ErrTLSFailure, err.Error())
		}
		listener = tls.NewListener(listener, config)
		s.tls = true
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.genCtx.BaseURL = s.baseURL()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Any("/*", s.handle)

	s.httpServer = &http.Server{Handler: e}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("mock server stopped unexpectedly")
		}
	}()

	log.Infof("mock server for consumer %q listening on port %d", s.pact.Consumer.Name, s.port)
	return nil
}

func (s *Server) baseURL() string {
	scheme := "http"
	if s.tls {
		scheme = "https"
	}
	return fmt.Sprintf("%s://localhost:%d", scheme, s.port)
}

// shutdown stops the listener, draining in-flight requests first.
// Safe to call more than once.
func (s *Server) shutdown() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("mock server did not shut down cleanly")
	}
}

func (s *Server) handle(c echo.Context) error {
	httpReq := c.Request()
	body, err := io.ReadAll(httpReq.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read request body")
	}
	req := requestDocument{
		Method:  httpReq.Method,
		Path:    httpReq.URL.Path,
		Query:   httpReq.URL.Query(),
		Headers: httpReq.Header,
		Body:    body,
	}

	interaction, outcome := s.resolve(req)

	s.mu.Lock()
	s.outcomes = append(s.outcomes, outcome)
	s.mu.Unlock()

	if interaction == nil {
		log.Warnf("no interaction matched %s %s", req.Method, req.Path)
		return c.JSON(http.StatusInternalServerError, outcome.Document())
	}
	return s.respond(c, interaction)
}

// resolve finds the interaction for a request. Full matches win; among
// several the first by registration order is used and the ambiguity is
// noted. With no full match the closest candidate's mismatches are
// reported, or request-not-found when nothing shares the method and
// path.
func (s *Server) resolve(req requestDocument) (*pactfile.Interaction, Outcome) {
	var matched []int
	closest := -1
	var closestMismatches []matchers.Mismatch

	for i, interaction := range s.pact.Interactions {
		mismatches := matchRequest(interaction, req)
		if len(mismatches) == 0 {
			matched = append(matched, i)
			continue
		}
		if closest == -1 || len(mismatches) < len(closestMismatches) {
			closest, closestMismatches = i, mismatches
		}
	}

	if len(matched) > 0 {
		index := matched[0]
		s.mu.Lock()
		s.hits[index] = true
		s.mu.Unlock()
		outcome := Outcome{
			Type:        outcomeMatch,
			Interaction: s.pact.Interactions[index].Description,
			Method:      req.Method,
			Path:        req.Path,
		}
		if len(matched) > 1 {
			outcome.Note = fmt.Sprintf("request matched %d interactions; using %q", len(matched),
				s.pact.Interactions[index].Description)
			log.Warn(outcome.Note)
		}
		return s.pact.Interactions[index], outcome
	}

	if closest == -1 {
		return nil, Outcome{Type: outcomeNotFound, Method: req.Method, Path: req.Path}
	}

	near := s.pact.Interactions[closest]
	outcome := Outcome{
		Type:        outcomeMismatch,
		Interaction: near.Description,
		Method:      req.Method,
		Path:        req.Path,
		Mismatches:  closestMismatches,
		Note:        strings.Join(describeNearMiss(near, req, closestMismatches), "; "),
	}
	if !methodAndPathMatch(near, req) {
		outcome.Type = outcomeNotFound
	}
	return nil, outcome
}

func methodAndPathMatch(interaction *pactfile.Interaction, req requestDocument) bool {
	for _, m := range matchRequest(interaction, req) {
		if m.Type == "MethodMismatch" || m.Type == "PathMismatch" {
			return false
		}
	}
	return true
}

// respond writes the interaction's response, applying any response
// generators first.
func (s *Server) respond(c echo.Context, interaction *pactfile.Interaction) error {
	response := interaction.Response

	status := response.Status
	if status == 0 {
		status = http.StatusOK
	}
	if response.Generators != nil && response.Generators.Status != nil {
		generated := response.Generators.Status.Generate(s.genCtx, value.NewInt(int64(status)))
		status = int(generated.Float())
	}

	for name, headerValue := range response.Headers {
		if response.Generators != nil {
			if gen, ok := response.Generators.Header[name]; ok {
				headerValue = gen.Generate(s.genCtx, value.NewString(headerValue)).Str()
			}
		}
		c.Response().Header().Set(name, headerValue)
	}

	if response.Body == nil {
		return c.NoContent(status)
	}

	body := *response.Body
	if response.Generators != nil && len(response.Generators.Body) > 0 {
		body = applyBodyGenerators(body, response.Generators.Body, s.genCtx)
	}

	if c.Response().Header().Get(echo.HeaderContentType) == "" {
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return c.String(status, body.String())
}

// applyBodyGenerators substitutes generated values into the body at
// each generator's path.
func applyBodyGenerators(body value.Value, gens map[string]generators.Generator, ctx *generators.Context) value.Value {
	doc := body.String()
	for path, gen := range gens {
		target := sjsonPath(path)
		current := gjson.Get(doc, target)
		fallback := value.NewString(current.String())
		if parsed, err := value.Parse([]byte(current.Raw)); err == nil {
			fallback = parsed
		}
		generated := gen.Generate(ctx, fallback)
		updated, err := sjson.SetRaw(doc, target, generated.String())
		if err != nil {
			log.WithError(err).Warnf("unable to apply generator at %s", path)
			continue
		}
		doc = updated
	}
	out, err := value.Parse([]byte(doc))
	if err != nil {
		return body
	}
	return out
}

// sjsonPath converts a rule path like $.items[0].id to sjson's dotted
// form items.0.id.
func sjsonPath(path string) string {
	p := strings.TrimPrefix(path, "$")
	p = strings.TrimPrefix(p, ".")
	p = strings.ReplaceAll(p, "[", ".")
	p = strings.ReplaceAll(p, "]", "")
	return p
}

// matched reports whether every interaction was hit at least once and
// no request missed or mismatched.
func (s *Server) matched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, outcome := range s.outcomes {
		if outcome.Type != outcomeMatch {
			return false
		}
	}
	return len(s.hits) == len(s.pact.Interactions)
}

// mismatchDocuments returns every failure outcome plus one
// missing-request entry per interaction that was never exercised.
func (s *Server) mismatchDocuments() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []map[string]interface{}
	for _, outcome := range s.outcomes {
		if outcome.Type != outcomeMatch {
			docs = append(docs, outcome.Document())
		}
	}
	for i, interaction := range s.pact.Interactions {
		if !s.hits[i] {
			missing := Outcome{
				Type:        outcomeMissing,
				Interaction: interaction.Description,
				Method:      interaction.Request.Method,
				Path:        interaction.Request.Path,
			}
			docs = append(docs, missing.Document())
		}
	}
	return docs
}
