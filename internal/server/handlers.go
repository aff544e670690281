package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mhpenta/imagerelay"
	"github.com/mhpenta/imagerelay/comfy"
)

// Upload form limits; images beyond imagerelay.MaxImageSize are rejected by
// validation.
const (
	maxUploadSize = imagerelay.MaxImageSize + 1<<20
	maxJSONSize   = 4*imagerelay.MaxImageSize/3 + 1<<20
)

type describeRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Image  string `json:"image"` // base64 or data URL
}

type describeResponse struct {
	Description string `json:"description"`
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Image string `json:"image"`
	JobID string `json:"job_id"`
}

type uploadResponse struct {
	Description string `json:"description"`
	Image       string `json:"image"`
	JobID       string `json:"job_id"`
}

type healthResponse struct {
	Status    string   `json:"status"`
	Providers []string `json:"providers"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, healthResponse{Status: "ok", Providers: s.providers.Identifiers()})
}

// upload describes an uploaded image and generates a new one from the
// description.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid upload: %w", err))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, errors.New("image file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err))
		return
	}
	img := imagerelay.ImageFromBytes(data, uploadMIMEType(header.Header.Get("Content-Type"), data))

	description, err := s.runDescribe(r.Context(), r.FormValue("model"), imagerelay.DescriptionRequest{
		Image:  &img,
		Prompt: r.FormValue("prompt"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	url, jobID, err := s.runGenerate(r.Context(), description)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.json(w, http.StatusOK, uploadResponse{Description: description, Image: url, JobID: jobID})
}

func (s *Server) describe(w http.ResponseWriter, r *http.Request) {
	var req describeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	dr := imagerelay.DescriptionRequest{Prompt: req.Prompt}
	if req.Image != "" {
		img, err := imagerelay.ImageFromBase64(req.Image)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		dr.Image = &img
	}

	description, err := s.runDescribe(r.Context(), req.Model, dr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.json(w, http.StatusOK, describeResponse{Description: description})
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	url, jobID, err := s.runGenerate(r.Context(), req.Prompt)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.json(w, http.StatusOK, generateResponse{Image: url, JobID: jobID})
}

func (s *Server) runDescribe(ctx context.Context, model string, req imagerelay.DescriptionRequest) (string, error) {
	if strings.TrimSpace(model) == "" {
		model = DefaultProvider
	}
	d, err := s.providers.Resolve(ctx, model)
	if err != nil {
		return "", err
	}
	defer d.Close()

	result, err := d.Describe(ctx, req)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// runGenerate runs a job and, when storage is configured, republishes the
// output under the relay's own URL.
func (s *Server) runGenerate(ctx context.Context, prompt string) (string, string, error) {
	job, err := s.generator.Run(ctx, prompt)
	if err != nil {
		return "", jobID(job), err
	}
	if s.storage == nil {
		return job.ImageRef, job.ID, nil
	}

	data, mimeType, err := s.generator.FetchImage(ctx, job.ImageRef)
	if err != nil {
		return "", job.ID, err
	}
	res, err := imagerelay.SaveImage(ctx, s.storage, data, mimeType, job.ID)
	if err != nil {
		return "", job.ID, fmt.Errorf("publishing output: %w", err)
	}
	return res.URL, job.ID, nil
}

func jobID(job *comfy.Job) string {
	if job == nil {
		return ""
	}
	return job.ID
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func uploadMIMEType(declared string, data []byte) string {
	declared, _, _ = strings.Cut(declared, ";")
	if imagerelay.ValidMIMETypes[declared] {
		return declared
	}
	return imagerelay.DetectMIMEType(data)
}

func (s *Server) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
