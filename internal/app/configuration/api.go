package configuration

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/covenant-oss/covenant/internal/app/httpresponse"
	"github.com/covenant-oss/covenant/internal/app/mockserver"
)

// ServeAdminAPI starts the HTTP API for managing mock servers:
//
//	POST   /                        start a server for the posted pact
//	GET    /mockserver/:port/verify mismatch report, 200 when clean
//	POST   /mockserver/:port/pact   write the pact file to disk
//	DELETE /mockserver/:port        stop the server
//	DELETE /mockserver              stop every server
func ServeAdminAPI(config Config) *echo.Echo {
	adminServer := newAdminServer(config, mockserver.DefaultManager)

	go func() {
		address := fmt.Sprintf(":%d", config.AdminPort)
		if err := adminServer.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	return adminServer
}

func newAdminServer(config Config, manager *mockserver.Manager) *echo.Echo {
	adminServer := echo.New()
	adminServer.HideBanner = true

	api := &adminAPI{config: config, manager: manager}
	adminServer.GET("/ready", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	adminServer.POST("/", api.createHandler)
	adminServer.GET("/mockserver/:port/verify", api.verifyHandler)
	adminServer.POST("/mockserver/:port/pact", api.writePactHandler)
	adminServer.DELETE("/mockserver/:port", api.deleteHandler)
	adminServer.DELETE("/mockserver", api.deleteAllHandler)
	return adminServer
}

type adminAPI struct {
	config  Config
	manager *mockserver.Manager
}

func (a *adminAPI) createHandler(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil || len(body) == 0 {
		return c.JSON(http.StatusBadRequest, httpresponse.Error("request body must be a pact document"))
	}

	useTLS := c.QueryParam("tls") == "true"
	addr := fmt.Sprintf("%s:0", a.config.BindHost)
	if requested := c.QueryParam("port"); requested != "" {
		addr = fmt.Sprintf("%s:%s", a.config.BindHost, requested)
	}

	port, err := a.manager.StartString(string(body), addr, useTLS)
	if err != nil {
		return c.JSON(http.StatusInternalServerError,
			httpresponse.Errorf("unable to start mock server. %s", err.Error()))
	}

	log.Infof("mock server started on port %d", port)
	return c.JSON(http.StatusCreated, map[string]int{"port": port})
}

func (a *adminAPI) verifyHandler(c echo.Context) error {
	port, err := portParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Error(err.Error()))
	}

	matched, err := a.manager.Matched(port)
	if err != nil {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("no mock server on port %d", port))
	}
	report, err := a.manager.MismatchesJSON(port)
	if err != nil {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("no mock server on port %d", port))
	}

	status := http.StatusOK
	if !matched {
		status = http.StatusExpectationFailed
	}
	return c.JSONBlob(status, report)
}

func (a *adminAPI) writePactHandler(c echo.Context) error {
	port, err := portParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Error(err.Error()))
	}

	dir := c.QueryParam("dir")
	if dir == "" {
		dir = a.config.PactDir
	}
	overwrite := c.QueryParam("overwrite") == "true"

	if err := a.manager.WritePact(port, dir, overwrite); err != nil {
		if err == mockserver.ErrNoServer {
			return c.JSON(http.StatusNotFound, httpresponse.Errorf("no mock server on port %d", port))
		}
		return c.JSON(http.StatusInternalServerError,
			httpresponse.Errorf("unable to write pact file. %s", err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *adminAPI) deleteHandler(c echo.Context) error {
	port, err := portParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Error(err.Error()))
	}
	if !a.manager.Stop(port) {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("no mock server on port %d", port))
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *adminAPI) deleteAllHandler(c echo.Context) error {
	stopped := a.manager.StopAll()
	log.Infof("stopped %d mock servers", stopped)
	return c.NoContent(http.StatusNoContent)
}

func portParam(c echo.Context) (int, error) {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil {
		return 0, fmt.Errorf("port %q is not numeric", c.Param("port"))
	}
	return port, nil
}
