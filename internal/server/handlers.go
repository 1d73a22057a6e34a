package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tcross/narrator/internal/history"
	"github.com/tcross/narrator/internal/logger"
	"github.com/tcross/narrator/internal/narrator"
	"github.com/tcross/narrator/internal/speech"
)

// narrationRequest 是 POST /api/narrations 的请求体。
// Text 为 nil 时使用对应语言的默认文本；显式传入空白文本会被拒绝。
type narrationRequest struct {
	Text     *string     `json:"text"`
	Language string      `json:"language"`
	Gender   string      `json:"gender"`
	Speed    json.Number `json:"speed"`
	Engine   string      `json:"engine"`
}

type narrationResponse struct {
	ID       string          `json:"id,omitempty"`
	FileName string          `json:"file_name,omitempty"`
	URL      string          `json:"url,omitempty"`
	Language speech.Language `json:"language"`
	Gender   speech.Gender   `json:"gender"`
	Speed    float64         `json:"speed"`
	Engine   speech.Engine   `json:"engine"`
	Voice    string          `json:"voice,omitempty"`
	Size     int64           `json:"size,omitempty"`
	Duration float64         `json:"duration_seconds,omitempty"`
	Degraded bool            `json:"degraded,omitempty"`
	Warning  string          `json:"warning,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.render(w); err != nil {
		logger.Errorf("[server] 渲染页面失败: %v", err)
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) voices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"voices": s.catalog.Voices()})
}

func (s *Server) listNarrations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := s.history.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"narrations": records, "count": len(records)})
}

func (s *Server) getNarration(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	rec, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) createNarration(w http.ResponseWriter, r *http.Request) {
	body, err := decodeNarration(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := body.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.svc.Generate(r.Context(), req)

	resp := narrationResponse{
		Language: req.Language,
		Gender:   req.Gender,
		Speed:    req.Speed,
		Engine:   req.Engine,
	}
	if res != nil {
		resp.ID = res.ID
		resp.FileName = res.FileName
		resp.URL = "/files/" + url.PathEscape(res.FileName)
		resp.Voice = res.Voice
		resp.Size = res.Size
		resp.Duration = res.Duration.Seconds()
		resp.Degraded = res.Degraded
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, resp)
	case narrator.IsDegraded(err):
		resp.Warning = err.Error()
		writeJSON(w, http.StatusCreated, resp)
	case errors.Is(err, speech.ErrEmptyText),
		errors.Is(err, speech.ErrInvalidLanguage),
		errors.Is(err, speech.ErrInvalidGender),
		errors.Is(err, speech.ErrInvalidSpeed),
		errors.Is(err, speech.ErrInvalidEngine):
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadRequest, resp)
	default:
		// 失败但文件仍在时，resp.URL 不为空，页面照样提供下载
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
	}
}

// file 提供生成的 MP3 下载。只接受输出目录下的文件名。
func (s *Server) file(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || !validFileName(name) {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	f, err := os.Open(filepath.Join(s.svc.OutputDir(), name))
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func validFileName(name string) bool {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return strings.HasSuffix(name, ".mp3") && !strings.HasSuffix(name, ".tmp.mp3")
}

// decodeNarration 读取 JSON 或表单格式的请求体。
func decodeNarration(r *http.Request) (narrationRequest, error) {
	var body narrationRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(r.Body).Decode(&body)
		return body, err
	}

	if err := r.ParseForm(); err != nil {
		return body, err
	}
	if _, ok := r.PostForm["text"]; ok {
		text := r.PostForm.Get("text")
		body.Text = &text
	}
	body.Language = r.PostForm.Get("language")
	body.Gender = r.PostForm.Get("gender")
	body.Speed = json.Number(r.PostForm.Get("speed"))
	body.Engine = r.PostForm.Get("engine")
	return body, nil
}

// toRequest 解析各字段，缺省值与页面表单的默认选项一致。
func (b narrationRequest) toRequest() (speech.Request, error) {
	req := speech.Request{
		Language: speech.English,
		Gender:   speech.Female,
		Speed:    speech.DefaultSpeed,
		Engine:   speech.EngineEdge,
	}
	var err error
	if b.Language != "" {
		if req.Language, err = speech.ParseLanguage(b.Language); err != nil {
			return req, err
		}
	}
	if b.Gender != "" {
		if req.Gender, err = speech.ParseGender(b.Gender); err != nil {
			return req, err
		}
	}
	if b.Speed != "" {
		if req.Speed, err = speech.ParseSpeed(b.Speed.String()); err != nil {
			return req, err
		}
	}
	if b.Engine != "" {
		if req.Engine, err = speech.ParseEngine(b.Engine); err != nil {
			return req, err
		}
	}
	if b.Text == nil {
		req.Text = speech.DefaultTexts[req.Language]
	} else {
		req.Text = *b.Text
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
