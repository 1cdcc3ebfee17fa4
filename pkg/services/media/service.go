package media

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/pkg/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Kind is the folder an upload is filed under
type Kind string

const (
	KindScreenshot Kind = "screenshots"
	KindAvatar     Kind = "avatars"
	KindProduct    Kind = "products"
	KindBranding   Kind = "branding"
)

// MaxUploadSize bounds a single decoded upload
const MaxUploadSize = 5 << 20

// DefaultAvatar is used when no avatar pool is configured
const DefaultAvatar = "https://picsum.photos/seed/user/200"

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Service stores uploaded images and hands out default avatars
type Service struct {
	store   storage.Storage
	log     *logging.Logger
	avatars []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewService creates a new media service. avatarPath is a file of avatar
// URLs, one per line; a missing file leaves the pool empty.
func NewService(store storage.Storage, avatarPath string, log *logging.Logger) (*Service, error) {
	if log == nil {
		log = logging.Discard
	}

	avatars, err := loadAvatars(avatarPath)
	if err != nil {
		return nil, err
	}

	// Create random number generator with time-based seed
	source := rand.NewSource(time.Now().UnixNano())

	return &Service{
		store:   store,
		log:     log.Component("media"),
		avatars: avatars,
		rng:     rand.New(source),
	}, nil
}

func loadAvatars(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var avatars []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		url := strings.TrimSpace(scanner.Text())
		if url != "" && !strings.HasPrefix(url, "#") {
			avatars = append(avatars, url)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return avatars, nil
}

// RandomAvatar returns a random avatar from the pool
func (s *Service) RandomAvatar() string {
	if len(s.avatars) == 0 {
		return DefaultAvatar
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avatars[s.rng.Intn(len(s.avatars))]
}

// Upload validates and stores an image, returning its public URL
func (s *Service) Upload(ctx context.Context, kind Kind, data []byte) (string, error) {
	if len(data) == 0 {
		return "", types.NewStoreError(types.ErrValidation, "Upload is empty")
	}
	if len(data) > MaxUploadSize {
		return "", types.NewStoreError(types.ErrValidation,
			fmt.Sprintf("Upload exceeds %d MB", MaxUploadSize>>20))
	}

	contentType := http.DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return "", types.NewStoreError(types.ErrValidation,
			fmt.Sprintf("Unsupported image type %s", contentType))
	}

	key := fmt.Sprintf("%s/%s%s", kind, uuid.NewString(), ext)
	url, err := s.store.Put(ctx, &storage.Object{Key: key, ContentType: contentType, Data: data})
	if err != nil {
		s.log.WithFields(logrus.Fields{"key": key}).WithError(err).Error("failed to store upload")
		return "", types.WrapError(types.ErrStoreUnavailable, "Failed to store upload", err)
	}

	s.log.WithFields(logrus.Fields{"key": key, "bytes": len(data)}).Debug("stored upload")
	return url, nil
}

// Resolve turns an image reference into a URL. Browser clients send inline
// data URLs, which are uploaded; plain URLs pass through unchanged.
func (s *Service) Resolve(ctx context.Context, kind Kind, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, "data:") {
		return ref, nil
	}

	data, err := DecodeDataURL(ref)
	if err != nil {
		return "", types.WrapError(types.ErrValidation, "Malformed image data", err)
	}
	return s.Upload(ctx, kind, data)
}

// DecodeDataURL extracts the payload of a base64 data URL
func DecodeDataURL(ref string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("missing data separator")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("data URL is not base64 encoded")
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxUploadSize+3 {
		return nil, fmt.Errorf("data URL exceeds %d bytes", MaxUploadSize)
	}
	return base64.StdEncoding.DecodeString(payload)
}
