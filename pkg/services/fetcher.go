package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// Fetcher opens asset bytes at the origin. A positive length limits the read to
// the first length bytes; zero or less reads the whole asset. Stream forwards a
// client's Range header and reports how the origin answered it.
type Fetcher interface {
	Open(ctx context.Context, ref string, length int64) (io.ReadCloser, string, error)
	Stream(ctx context.Context, ref string, byteRange string) (*Stream, error)
}

// Stream is an asset body on its way from the origin to a client
type Stream struct {
	Body        io.ReadCloser
	ContentType string
	// Size is the length of Body, or -1 when the origin did not say
	Size         int64
	ContentRange string
	// Status is http.StatusOK, http.StatusPartialContent or http.StatusRequestedRangeNotSatisfiable
	Status int
}

// HTTPFetcher reads assets from a web origin
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher for assets under baseURL
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Open requests the asset, asking for a byte range when length is positive
func (f *HTTPFetcher) Open(ctx context.Context, ref string, length int64) (io.ReadCloser, string, error) {
	byteRange := ""
	if length > 0 {
		byteRange = fmt.Sprintf("bytes=0-%d", length-1)
	}

	resp, err := f.get(ctx, ref, byteRange)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		resp.Body.Close()
		return nil, "", fmt.Errorf("fetch %s: unexpected status %d", ref, resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// Stream requests the asset with the client's Range header, if any
func (f *HTTPFetcher) Stream(ctx context.Context, ref string, byteRange string) (*Stream, error) {
	resp, err := f.get(ctx, ref, byteRange)
	if err != nil {
		return nil, err
	}
	return &Stream{
		Body:         resp.Body,
		ContentType:  resp.Header.Get("Content-Type"),
		Size:         resp.ContentLength,
		ContentRange: resp.Header.Get("Content-Range"),
		Status:       resp.StatusCode,
	}, nil
}

// get returns the response for 200, 206 and 416; other statuses are errors
func (f *HTTPFetcher) get(ctx context.Context, ref string, byteRange string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.resolve(ref), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", ref, err)
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent, http.StatusRequestedRangeNotSatisfiable:
		return resp, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, ref)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", ref, resp.StatusCode)
	}
}

func (f *HTTPFetcher) resolve(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return f.baseURL + "/" + strings.TrimLeft(ref, "/")
}

// BucketFetcher reads assets from a Cloud Storage bucket. Asset refs map to object
// names without their leading slash.
type BucketFetcher struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// NewBucketFetcher opens a storage client for bucket
func NewBucketFetcher(ctx context.Context, bucket string) (*BucketFetcher, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &BucketFetcher{
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
	}, nil
}

// Open reads the object, or its first length bytes when length is positive
func (f *BucketFetcher) Open(ctx context.Context, ref string, length int64) (io.ReadCloser, string, error) {
	if length <= 0 {
		length = -1
	}

	r, err := f.bucket.Object(objectName(ref)).NewRangeReader(ctx, 0, length)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, "", fmt.Errorf("%w: gs://%s/%s", ErrAssetNotFound, f.name, objectName(ref))
	}
	if err != nil {
		return nil, "", fmt.Errorf("read gs://%s/%s: %w", f.name, objectName(ref), err)
	}
	return r, r.Attrs.ContentType, nil
}

// Stream reads the object, or the single byte range the client asked for. Ranges the
// object cannot satisfy get a 416; multi-range requests are served whole.
func (f *BucketFetcher) Stream(ctx context.Context, ref string, byteRange string) (*Stream, error) {
	name := objectName(ref)
	obj := f.bucket.Object(name)

	offset, length, ranged := parseByteRange(byteRange)
	if ranged && offset >= 0 {
		attrs, err := obj.Attrs(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrAssetNotFound, f.name, name)
		}
		if err != nil {
			return nil, fmt.Errorf("stat gs://%s/%s: %w", f.name, name, err)
		}
		if offset >= attrs.Size {
			return &Stream{
				Body:         io.NopCloser(strings.NewReader("")),
				Size:         0,
				ContentRange: fmt.Sprintf("bytes */%d", attrs.Size),
				Status:       http.StatusRequestedRangeNotSatisfiable,
			}, nil
		}
	}
	if !ranged {
		offset, length = 0, -1
	}

	r, err := obj.NewRangeReader(ctx, offset, length)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", ErrAssetNotFound, f.name, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", f.name, name, err)
	}

	stream := &Stream{
		Body:        r,
		ContentType: r.Attrs.ContentType,
		Size:        r.Remain(),
		Status:      http.StatusOK,
	}
	if ranged {
		start := r.Attrs.StartOffset
		stream.Status = http.StatusPartialContent
		stream.ContentRange = fmt.Sprintf("bytes %d-%d/%d", start, start+r.Remain()-1, r.Attrs.Size)
	}
	return stream, nil
}

// parseByteRange reads a single "bytes=" range into NewRangeReader arguments.
// A suffix range "bytes=-n" gives a negative offset, which reads the last n bytes.
func parseByteRange(header string) (offset, length int64, ok bool) {
	ranges, found := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !found || strings.Contains(ranges, ",") {
		return 0, 0, false
	}
	first, last, found := strings.Cut(strings.TrimSpace(ranges), "-")
	if !found {
		return 0, 0, false
	}

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		return -n, -1, true
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	if last == "" {
		return start, -1, true
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	return start, end - start + 1, true
}

// ListObjects returns every object name in the bucket in natural order
func (f *BucketFetcher) ListObjects(ctx context.Context) ([]string, error) {
	var names []string
	it := f.bucket.Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating objects: %w", err)
		}
		names = append(names, attrs.Name)
	}

	sort.Slice(names, func(i, j int) bool {
		return naturalLess(names[i], names[j])
	})
	return names, nil
}

// Close releases the storage client
func (f *BucketFetcher) Close() error {
	return f.client.Close()
}

func objectName(ref string) string {
	return strings.TrimPrefix(ref, "/")
}

// naturalLess orders digit runs by value, so "10219.mp4" sorts before "102110.mp4"
func naturalLess(s1, s2 string) bool {
	i, j := 0, 0
	for i < len(s1) && j < len(s2) {
		if isDigit(s1[i]) && isDigit(s2[j]) {
			si := i
			for i < len(s1) && isDigit(s1[i]) {
				i++
			}
			sj := j
			for j < len(s2) && isDigit(s2[j]) {
				j++
			}

			n1 := strings.TrimLeft(s1[si:i], "0")
			n2 := strings.TrimLeft(s2[sj:j], "0")
			if len(n1) != len(n2) {
				return len(n1) < len(n2)
			}
			if n1 != n2 {
				return n1 < n2
			}
			continue
		}

		if s1[i] != s2[j] {
			return s1[i] < s2[j]
		}
		i++
		j++
	}
	return len(s1)-i < len(s2)-j
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
