package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/eknkc/pug"

	"contest-site/pkg/models"
	"contest-site/pkg/services"
)

// StateSource is the preload session the pages report on
type StateSource interface {
	State() models.SessionState
	Manifest() models.Manifest
}

// AssetSource holds warm assets and streams the rest from the origin
type AssetSource interface {
	CachedAsset(ref string) (models.CachedAsset, bool)
	StreamAsset(ctx context.Context, ref string, byteRange string) (*services.Stream, error)
}

// IndexHandler renders the landing page, with the loading overlay while assets preload
func IndexHandler(viewsDir string, src StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		log.Println("Generating Index")

		template, err := pug.CompileFile(filepath.Join(viewsDir, "index.pug"), pug.Options{})
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			log.Printf("Template error: %v", err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err = template.Execute(w, models.Page{
			State:    src.State(),
			Manifest: src.Manifest(),
		})
		if err != nil {
			log.Printf("Template execution error: %v", err)
		}
	}
}

// StatusHandler reports the session state as JSON
func StatusHandler(src StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		jsonString, err := json.Marshal(src.State())
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if _, err := w.Write(jsonString); err != nil {
			log.Printf("Error writing status: %v", err)
		}
	}
}

// AssetHandler serves assets at their manifest paths, from memory when they were warmed.
// Both paths honor Range requests so browsers can play and seek videos.
func AssetHandler(svc AssetSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := r.URL.Path
		if ref == "" || ref == "/" || strings.Contains(ref, "..") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")

		if asset, ok := svc.CachedAsset(ref); ok && asset.Complete {
			if asset.ContentType != "" {
				w.Header().Set("Content-Type", asset.ContentType)
			}
			http.ServeContent(w, r, ref, time.Time{}, bytes.NewReader(asset.Data))
			return
		}

		stream, err := svc.StreamAsset(r.Context(), ref, r.Header.Get("Range"))
		if errors.Is(err, services.ErrAssetNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			log.Printf("Error opening asset %s: %v", ref, err)
			http.Error(w, "Bad gateway", http.StatusBadGateway)
			return
		}
		defer stream.Body.Close()

		header := w.Header()
		header.Set("Accept-Ranges", "bytes")
		if stream.ContentType != "" {
			header.Set("Content-Type", stream.ContentType)
		}
		if stream.Size >= 0 {
			header.Set("Content-Length", strconv.FormatInt(stream.Size, 10))
		}
		if stream.ContentRange != "" {
			header.Set("Content-Range", stream.ContentRange)
		}
		w.WriteHeader(stream.Status)

		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, stream.Body); err != nil {
			log.Printf("Error streaming asset %s: %v", ref, err)
		}
	}
}
