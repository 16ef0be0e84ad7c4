package api

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"aniloader/internal/catalog"
	"aniloader/internal/library"
	"aniloader/internal/scraper"
)

type urlRequest struct {
	URL string `json:"url" form:"url"`
}

// addSeries serves both /add_link and /export: normalize the URL, upsert
// the row and fetch the title in the background.
func (s *Server) addSeries(c echo.Context) error {
	var req urlRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "url required"})
	}

	base, err := scraper.SeriesBase(req.URL)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx := c.Request().Context()
	id, err := s.store.UpsertSeries(ctx, base, "")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	series, err := s.store.GetSeries(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	if series.Title == "" {
		go s.fetchTitle(id, base)
	}
	return c.JSON(http.StatusOK, series)
}

// fetchTitle fills in the title after the upsert response went out.
func (s *Server) fetchTitle(id int64, seriesURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	title, err := s.scraper.SeriesTitle(ctx, seriesURL)
	if err != nil || title == "" {
		s.logger.Warn().Err(err).Str("series", seriesURL).Msg("title fetch failed")
		return
	}
	if err := s.store.UpdateSeries(ctx, id, catalog.SeriesUpdate{Title: &title}); err != nil {
		s.logger.Warn().Err(err).Str("series", seriesURL).Msg("title update failed")
	}
}

func (s *Server) listSeries(c echo.Context) error {
	f := catalog.ListFilter{
		Query:  c.QueryParam("q"),
		SortBy: c.QueryParam("sort_by"),
		Order:  c.QueryParam("order"),
	}
	switch c.QueryParam("complete") {
	case "0":
		v := false
		f.Complete = &v
	case "1":
		v := true
		f.Complete = &v
	case "deleted":
		f.Deleted = catalog.DeletedOnly
	}
	switch c.QueryParam("deutsch") {
	case "0":
		v := false
		f.GermanComplete = &v
	case "1":
		v := true
		f.GermanComplete = &v
	}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		f.Limit = n
	}
	if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
		f.Offset = n
	}

	series, err := s.store.ListSeries(c.Request().Context(), f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, series)
}

// seriesCounts scans the series folder on disk; the numbers race with a
// running engine by design.
func (s *Server) seriesCounts(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		series *catalog.Series
		err    error
	)
	switch {
	case c.QueryParam("id") != "":
		var id int64
		id, err = strconv.ParseInt(c.QueryParam("id"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
		}
		series, err = s.store.GetSeries(ctx, id)
	case c.QueryParam("title") != "":
		series, err = s.store.GetSeriesByTitle(ctx, c.QueryParam("title"))
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id or title required"})
	}
	if errors.Is(err, catalog.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "series not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	layout := library.NewLayout(s.cfg.Snapshot())
	base := layout.BasePath(series.ContentType, false)
	folder := layout.SeriesFolder(base, series.Title)
	return c.JSON(http.StatusOK, library.CountSeries(folder))
}

// seriesStructure scrapes the live season/episode layout of one series so
// the UI can show what exists on the site next to what exists on disk.
func (s *Server) seriesStructure(c echo.Context) error {
	rawURL := c.QueryParam("url")
	if rawURL == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "url required"})
	}
	base, err := scraper.SeriesBase(rawURL)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	ctx := c.Request().Context()

	seasons, err := s.scraper.Seasons(ctx, base)
	if err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error()})
	}
	structure := make(map[string][]scraper.Episode, len(seasons))
	for _, season := range seasons {
		episodes, err := s.scraper.Episodes(ctx, base, season)
		if err != nil {
			s.logger.Warn().Err(err).Str("series", base).Int("season", season).Msg("episode listing failed")
			continue
		}
		structure[strconv.Itoa(season)] = episodes
	}
	return c.JSON(http.StatusOK, echo.Map{"url": base, "seasons": structure})
}

type searchRequest struct {
	Query string `json:"query" form:"query"`
}

func (s *Server) search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "query required"})
	}
	results := s.scraper.Search(c.Request().Context(), req.Query)
	if results == nil {
		results = []scraper.SearchResult{}
	}
	return c.JSON(http.StatusOK, echo.Map{"results": results})
}

// deleteSeries tombstones a series; purge=1 removes the row and its queue
// entries for good.
func (s *Server) deleteSeries(c echo.Context) error {
	id, err := strconv.ParseInt(c.QueryParam("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx := c.Request().Context()

	if c.QueryParam("purge") == "1" {
		err = s.store.HardDelete(ctx, id)
	} else {
		err = s.store.SoftDelete(ctx, id)
	}
	if errors.Is(err, catalog.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "series not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "deleted", "id": id})
}

type restoreRequest struct {
	ID    int64 `json:"id"`
	Queue bool  `json:"queue"`
}

func (s *Server) restoreSeries(c echo.Context) error {
	var req restoreRequest
	if err := c.Bind(&req); err != nil || req.ID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id required"})
	}
	ctx := c.Request().Context()

	if err := s.store.Restore(ctx, req.ID, req.Queue); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "series not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	series, err := s.store.GetSeries(ctx, req.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, series)
}

func (s *Server) checkSeries(c echo.Context) error {
	rawURL := c.QueryParam("url")
	if rawURL == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "url required"})
	}
	base, err := scraper.SeriesBase(rawURL)
	if err != nil {
		base = rawURL
	}
	exists, err := s.store.ActiveExists(c.Request().Context(), base)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"exists": exists})
}

// uploadTxt ingests a newline-delimited URL list; bad lines are skipped.
func (s *Server) uploadTxt(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file required"})
	}
	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	defer src.Close()

	ctx := c.Request().Context()
	count := 0
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		base, err := scraper.SeriesBase(line)
		if err != nil {
			s.logger.Warn().Str("line", line).Msg("skipping unparseable url in upload")
			continue
		}
		id, err := s.store.UpsertSeries(ctx, base, "")
		if err != nil {
			s.logger.Warn().Err(err).Str("url", base).Msg("upsert from upload failed")
			continue
		}
		count++
		if series, err := s.store.GetSeries(ctx, id); err == nil && series.Title == "" {
			go s.fetchTitle(id, base)
		}
	}
	if err := scanner.Err(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"count": count, "msg": "import finished"})
}
