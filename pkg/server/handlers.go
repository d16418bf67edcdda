package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/webcomponents/catalog/pkg/analysis"
)

func (s *Server) handleIngestLibrary(w http.ResponseWriter, r *http.Request) error {
	return s.service.IngestLibrary(r.Context(), r.PathValue("scope"), r.PathValue("package"))
}

func (s *Server) handleUpdateLibrary(w http.ResponseWriter, r *http.Request) error {
	return s.service.UpdateLibrary(r.Context(), r.PathValue("owner"), r.PathValue("repo"))
}

func (s *Server) handleEnsureLibrary(w http.ResponseWriter, r *http.Request) error {
	return s.service.EnsureLibrary(r.Context(), r.PathValue("owner"), r.PathValue("repo"))
}

func (s *Server) handleIngestVersion(w http.ResponseWriter, r *http.Request) error {
	return s.service.IngestVersion(r.Context(), r.PathValue("scope"), r.PathValue("package"), r.PathValue("version"))
}

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) error {
	return s.service.DeleteVersion(r.Context(), r.PathValue("scope"), r.PathValue("package"), r.PathValue("version"))
}

func (s *Server) handleUpdateIndexes(w http.ResponseWriter, r *http.Request) error {
	return s.service.UpdateIndexes(r.Context(), r.PathValue("owner"), r.PathValue("repo"))
}

func (s *Server) handleMigrateLibrary(w http.ResponseWriter, r *http.Request) error {
	return s.service.MigrateLibrary(r.Context(),
		r.PathValue("owner"), r.PathValue("repo"),
		r.PathValue("scope"), r.PathValue("package"))
}

func (s *Server) handleAnalyzeLibrary(w http.ResponseWriter, r *http.Request) error {
	return s.service.AnalyzeLibrary(r.Context(), r.PathValue("scope"), r.PathValue("package"), false)
}

func (s *Server) handleAnalyzeLibraryLatest(w http.ResponseWriter, r *http.Request) error {
	return s.service.AnalyzeLibrary(r.Context(), r.PathValue("scope"), r.PathValue("package"), true)
}

func (s *Server) handleRequestAnalysis(w http.ResponseWriter, r *http.Request) error {
	return s.service.RequestAnalysis(r.Context(),
		r.PathValue("scope"), r.PathValue("package"),
		r.PathValue("version"), r.URL.Query().Get("sha"))
}

func (s *Server) handleIngestAuthor(w http.ResponseWriter, r *http.Request) error {
	return s.service.IngestAuthor(r.Context(), r.PathValue("name"))
}

func (s *Server) handleUpdateAuthor(w http.ResponseWriter, r *http.Request) error {
	return s.service.UpdateAuthor(r.Context(), r.PathValue("name"))
}

func (s *Server) handleEnsureAuthor(w http.ResponseWriter, r *http.Request) error {
	return s.service.EnsureAuthor(r.Context(), r.PathValue("name"))
}

func (s *Server) handleIngestPreview(w http.ResponseWriter, r *http.Request) error {
	commit := r.URL.Query().Get("commit")
	url := r.URL.Query().Get("url")
	if commit == "" || url == "" {
		http.Error(w, "commit and url are required", http.StatusBadRequest)
		return nil
	}
	return s.service.IngestPreview(r.Context(), r.PathValue("owner"), r.PathValue("repo"), commit, url)
}

func (s *Server) handleIngestWebhook(w http.ResponseWriter, r *http.Request) error {
	accessToken := r.URL.Query().Get("access_token")
	if accessToken == "" {
		http.Error(w, "access_token is required", http.StatusBadRequest)
		return nil
	}
	return s.service.IngestWebhook(r.Context(), r.PathValue("owner"), r.PathValue("repo"), accessToken)
}

func (s *Server) handleAnalysisPush(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(analysis.MaxPayload)+1))
	if err != nil {
		return err
	}
	return s.service.IngestAnalysis(r.Context(), body)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) error {
	fmt.Fprintln(w, s.guard.Tokens.Mint())
	return nil
}

func (s *Server) handleGithubStatus(w http.ResponseWriter, r *http.Request) error {
	limits, err := s.service.GitHub.RateLimits(r.Context())
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(limits)
}

func (s *Server) handleAddLibrary(w http.ResponseWriter, r *http.Request) error {
	if err := s.service.AddLibrary(r.Context(), r.PathValue("owner"), r.PathValue("repo")); err != nil {
		return err
	}
	fmt.Fprintln(w, "ingestion triggered")
	return nil
}

func (s *Server) handleUpdateAll(w http.ResponseWriter, r *http.Request) error {
	started, err := s.service.UpdateAll(r.Context())
	if err != nil {
		return err
	}
	if !started {
		fmt.Fprintln(w, "update already in progress")
		return nil
	}
	fmt.Fprintln(w, "update started")
	return nil
}

func (s *Server) handleAnalyzeAll(w http.ResponseWriter, r *http.Request) error {
	latest := r.URL.Query().Get("latest") == "true"
	count, err := s.service.AnalyzeAll(r.Context(), latest)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "triggered %d analyses\n", count)
	return nil
}

func (s *Server) handleIndexAll(w http.ResponseWriter, r *http.Request) error {
	count, err := s.service.IndexAll(r.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "triggered %d index updates\n", count)
	return nil
}

func (s *Server) handleBuildSitemaps(w http.ResponseWriter, r *http.Request) error {
	if err := s.service.BuildSitemaps(r.Context()); err != nil {
		return err
	}
	fmt.Fprintln(w, "sitemaps built")
	return nil
}

func (s *Server) handleInspectIndex(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("owner") + "/" + r.PathValue("repo")
	doc, err := s.service.Index.Get(r.Context(), id)
	if err != nil {
		return err
	}
	if doc == nil {
		http.NotFound(w, r)
		return nil
	}
	return json.NewEncoder(w).Encode(doc)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return nil
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := s.service.Index.Search(r.Context(), query, limit)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(results)
}

func (s *Server) handleDeleteLibrary(w http.ResponseWriter, r *http.Request) error {
	return s.service.DeleteLibrary(r.Context(), w, r.PathValue("scope"), r.PathValue("package"))
}

func (s *Server) handleDeleteEverything(w http.ResponseWriter, r *http.Request) error {
	return s.service.DeleteEverything(r.Context(), w)
}
