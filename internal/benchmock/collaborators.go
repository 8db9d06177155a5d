package benchmock

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tOgg1/pocketbench/internal/models"
)

var searchFixtures = []models.SearchResult{
	{ID: "TheBloke/Llama-2-7B-GGUF", Author: "TheBloke", Name: "Llama-2-7B-GGUF", Likes: 1200, Downloads: 95000, Updated: "2024-01-10"},
	{ID: "TheBloke/Mistral-7B-Instruct-v0.2-GGUF", Author: "TheBloke", Name: "Mistral-7B-Instruct-v0.2-GGUF", Likes: 900, Downloads: 120000, Updated: "2024-02-02"},
	{ID: "Qwen/Qwen2-0.5B-Instruct-GGUF", Author: "Qwen", Name: "Qwen2-0.5B-Instruct-GGUF", Likes: 150, Downloads: 40000, Updated: "2024-06-07"},
}

var fileFixtures = []models.RepoFile{
	{Name: "model.Q4_K_M.gguf", SizeStr: "4.1 GB", SizeBytes: 4_100_000_000, Tags: "Q4_K_M"},
	{Name: "model.Q8_0.gguf", SizeStr: "7.2 GB", SizeBytes: 7_200_000_000, Tags: "Q8_0"},
}

func defaultLocalModels() []models.LocalModel {
	return []models.LocalModel{
		{Type: models.LocalModelValid, RepoID: "Qwen/Qwen2-0.5B-Instruct-GGUF", Filename: "qwen2-0_5b-instruct-q4_k_m.gguf", Tags: "Q4_K_M", SizeStr: "398.0 MB", Revision: "main"},
		{Type: models.LocalModelIncomplete, RepoID: "TheBloke/Llama-2-7B-GGUF", Filename: "llama-2-7b.Q4_K_M.gguf", SizeStr: "1.2 GB", Path: "/cache/llama-2-7b.Q4_K_M.gguf.incomplete"},
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	out := []models.SearchResult{}
	if q != "" {
		for _, res := range searchFixtures {
			if strings.Contains(strings.ToLower(res.ID), q) {
				out = append(out, res)
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(r.URL.Query().Get("repo")) == "" {
		writeJSON(w, http.StatusOK, []models.RepoFile{})
		return
	}
	writeJSON(w, http.StatusOK, fileFixtures)
}

func (s *Server) handleLocalModels(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := append([]models.LocalModel(nil), s.models...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, models.StatusResponse{Status: "error", Msg: err.Error()})
		return
	}
	if req.Path == "" && (req.RepoID == "" || req.Revision == "") {
		writeJSON(w, http.StatusOK, models.StatusResponse{Status: "error", Msg: "Missing parameters"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.models {
		if (req.Path != "" && m.Path == req.Path) ||
			(m.RepoID == req.RepoID && m.Revision == req.Revision && m.Filename == req.Filename) {
			s.models = append(s.models[:i], s.models[i+1:]...)
			writeJSON(w, http.StatusOK, models.StatusResponse{Status: "success", Msg: "Deleted " + m.Filename})
			return
		}
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "error", Msg: "Model not found"})
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.SystemInfo{Display: "Mock CPU (8 cores)", RAMTotal: 16, CPUCores: 8, OS: "linux"})
}
