package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	_ "golang.org/x/image/webp"

	"contest-site/pkg/config"
	"contest-site/pkg/models"
)

var (
	// ErrNotAVideo is returned when a video ref does not hold an mp4 or webm container
	ErrNotAVideo = errors.New("asset is not a supported video container")
	// ErrMetadataNotFound is returned when the moov box is not within the buffered window
	ErrMetadataNotFound = errors.New("video metadata not found in buffered window")
	// ErrAssetTooLarge is returned when an image exceeds the configured limit
	ErrAssetTooLarge = errors.New("asset exceeds size limit")
	// ErrAssetNotFound is returned when the origin has no such asset
	ErrAssetNotFound = errors.New("asset not found")
)

// Service loads media from the asset origin and keeps the results warm in memory
type Service struct {
	config  *config.Config
	fetcher Fetcher
	cache   *cache.Cache
	logger  *slog.Logger
}

var (
	// defaultService is the singleton instance of Service
	defaultService *Service
	initErr        error
	once           sync.Once
)

// InitService initializes the process-wide service with the origin named by cfg
func InitService(cfg *config.Config) error {
	once.Do(func() {
		var fetcher Fetcher
		if cfg.UsesBucket() {
			fetcher, initErr = NewBucketFetcher(context.Background(), cfg.BucketName)
			if initErr != nil {
				return
			}
		} else {
			fetcher = NewHTTPFetcher(cfg.AssetOrigin, nil)
		}
		defaultService = NewService(cfg, fetcher)
	})
	return initErr
}

// Default returns the service set up by InitService, or nil before it ran
func Default() *Service {
	return defaultService
}

// NewService creates a service reading from f
func NewService(cfg *config.Config, f Fetcher) *Service {
	ttl := cfg.Preload.CacheTTL()
	return &Service{
		config:  cfg,
		fetcher: f,
		cache:   cache.New(ttl, 2*ttl),
		logger:  slog.Default(),
	}
}

// Fetcher returns the origin the service reads from
func (s *Service) Fetcher() Fetcher {
	return s.fetcher
}

// LoadImage fetches and decodes an image. Undecodable bytes count as a failed load.
func (s *Service) LoadImage(ctx context.Context, ref string) error {
	start := time.Now()
	body, _, err := s.fetcher.Open(ctx, ref, 0)
	if err != nil {
		return err
	}
	defer body.Close()

	limit := s.config.Preload.MaxImageBytes
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return fmt.Errorf("read %s: %w", ref, err)
	}
	if int64(len(data)) > limit {
		return fmt.Errorf("%w: %s is larger than %d bytes", ErrAssetTooLarge, ref, limit)
	}

	_, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode %s: %w", ref, err)
	}

	s.store(models.CachedAsset{
		URL:         ref,
		Kind:        models.AssetKindImage,
		ContentType: http.DetectContentType(data),
		Data:        data,
		Size:        len(data),
		Complete:    true,
	})
	s.logger.Debug("image warmed", "url", ref, "format", format, "bytes", len(data), "took", time.Since(start))
	return nil
}

// LoadVideo buffers the start of a video until it reaches level
func (s *Service) LoadVideo(ctx context.Context, ref string, level models.ReadinessLevel) error {
	start := time.Now()
	window := s.config.Preload.CanPlayBytes
	body, _, err := s.fetcher.Open(ctx, ref, window)
	if err != nil {
		return err
	}
	defer body.Close()

	var buf bytes.Buffer
	r := io.TeeReader(io.LimitReader(body, window), &buf)

	// metadata reads stop early, so only a full can-play read can hold the whole file.
	// Playback needs the metadata too, so can-play also requires moov within the window.
	complete := false
	switch level {
	case models.ReadinessMetadata:
		err = readMetadata(r, &buf)
	default:
		_, err = io.Copy(io.Discard, r)
		if err == nil {
			err = readMetadata(bytes.NewReader(buf.Bytes()), nil)
		}
		complete = int64(buf.Len()) < window
	}
	if err != nil {
		return fmt.Errorf("buffer %s: %w", ref, err)
	}

	data := buf.Bytes()
	s.store(models.CachedAsset{
		URL:         ref,
		Kind:        models.AssetKindVideo,
		ContentType: http.DetectContentType(data),
		Data:        data,
		Size:        len(data),
		Complete:    complete,
	})
	s.logger.Debug("video warmed", "url", ref, "level", level, "bytes", len(data), "took", time.Since(start))
	return nil
}

// CachedAsset returns the warmed record for ref
func (s *Service) CachedAsset(ref string) (models.CachedAsset, bool) {
	v, found := s.cache.Get(ref)
	if !found {
		return models.CachedAsset{}, false
	}
	return v.(models.CachedAsset), true
}

// StreamAsset opens ref at the origin, forwarding the client's Range header.
// Complete warm assets are served from CachedAsset instead.
func (s *Service) StreamAsset(ctx context.Context, ref string, byteRange string) (*Stream, error) {
	return s.fetcher.Stream(ctx, ref, byteRange)
}

// Flush drops every warmed asset
func (s *Service) Flush() {
	s.cache.Flush()
}

func (s *Service) store(asset models.CachedAsset) {
	s.cache.Set(asset.URL, asset, cache.DefaultExpiration)
}

// sniffLen is how much http.DetectContentType looks at
const sniffLen = 512

func checkContainer(prefix []byte) error {
	switch http.DetectContentType(prefix) {
	case "video/mp4", "video/webm":
		return nil
	default:
		return ErrNotAVideo
	}
}

// readMetadata walks top-level MP4 boxes until the moov box has been read.
// WebM carries no moov box; its header counts as metadata. When r tees into buf
// the sniffed bytes are taken from buf, otherwise they are read from r directly.
func readMetadata(r io.Reader, buf *bytes.Buffer) error {
	var sniffed []byte
	if buf != nil {
		if _, err := io.CopyN(io.Discard, r, sniffLen); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		sniffed = bytes.Clone(buf.Bytes())
	} else {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(r, head)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return err
		}
		sniffed = head[:n]
	}
	if err := checkContainer(sniffed); err != nil {
		return err
	}
	if http.DetectContentType(sniffed) == "video/webm" {
		return nil
	}

	boxes := io.MultiReader(bytes.NewReader(sniffed), r)
	for {
		size, boxType, headerLen, err := readBoxHeader(boxes)
		if err != nil {
			return err
		}
		if size == 0 {
			// the box runs to the end of the file
			if boxType != "moov" {
				return ErrMetadataNotFound
			}
			_, err := io.Copy(io.Discard, boxes)
			return err
		}
		if _, err := io.CopyN(io.Discard, boxes, size-headerLen); err != nil {
			return ErrMetadataNotFound
		}
		if boxType == "moov" {
			return nil
		}
	}
}

func readBoxHeader(r io.Reader) (size int64, boxType string, headerLen int64, err error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, "", 0, ErrMetadataNotFound
	}

	size = int64(binary.BigEndian.Uint32(header[0:4]))
	boxType = string(header[4:8])
	headerLen = 8

	if size == 1 {
		if _, err := io.ReadFull(r, header); err != nil {
			return 0, "", 0, ErrMetadataNotFound
		}
		size = int64(binary.BigEndian.Uint64(header))
		headerLen = 16
	}
	if size != 0 && size < headerLen {
		return 0, "", 0, fmt.Errorf("%w: box %q has invalid size %d", ErrNotAVideo, boxType, size)
	}
	return size, boxType, headerLen, nil
}
