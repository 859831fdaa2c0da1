package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"safetrain_backend/internal/model"
	"safetrain_backend/internal/repository"
	"safetrain_backend/internal/util"
	"safetrain_backend/pkg/logger"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CourseService struct {
	CourseRepo *repository.CourseRepository
	Storage    *StorageService
}

func NewCourseService(courseRepo *repository.CourseRepository, storage *StorageService) *CourseService {
	return &CourseService{CourseRepo: courseRepo, Storage: storage}
}

func (s *CourseService) CreateCourse(ownerID uint, title, description string) (*model.Course, error) {
	course := &model.Course{
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
	}
	if err := s.CourseRepo.Create(course); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) GetCourse(id uint) (*model.Course, error) {
	course, err := s.CourseRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}
	return course, nil
}

func (s *CourseService) ListCourses(ownerID uint, page, pageSize int) ([]model.Course, int64, error) {
	return s.CourseRepo.ListByOwner(ownerID, page, pageSize)
}

// PublishVersion validates the authored graph and, when sound, freezes
// it as the next immutable course version. Validation problems are
// returned as one batch and nothing is persisted.
func (s *CourseService) PublishVersion(courseID uint, nodes []model.GraphNode, edges []model.GraphEdge) (*model.CourseVersion, []GraphError, error) {
	course, err := s.GetCourse(courseID)
	if err != nil {
		return nil, nil, err
	}

	graph, graphErrs := BuildCourseGraph(nodes, edges)
	if len(graphErrs) > 0 {
		return nil, graphErrs, nil
	}

	order, err := json.Marshal(graph.LinearOrder)
	if err != nil {
		return nil, nil, err
	}

	version := &model.CourseVersion{
		CourseID:             course.ID,
		Version:              course.PublishedVersion + 1,
		Title:                course.Title,
		LinearOrder:          string(order),
		TotalDurationSeconds: graph.TotalDurationSeconds,
		PublishedAt:          time.Now(),
	}
	for _, id := range graph.LinearOrder {
		n := graph.Nodes[id]
		version.Nodes = append(version.Nodes, model.CourseNode{
			NodeID:          n.ID,
			Kind:            n.Kind,
			ContentKind:     n.ContentKind,
			Title:           n.Title,
			MediaURL:        n.MediaURL,
			DurationSeconds: n.DurationSeconds,
		})
	}
	for pos, e := range edges {
		version.Edges = append(version.Edges, model.CourseEdge{
			FromNode: e.From,
			ToNode:   e.To,
			Position: pos,
		})
	}

	if err := s.CourseRepo.CreateVersion(version); err != nil {
		return nil, nil, err
	}

	logger.Log.Info("course version published",
		zap.Uint("courseId", course.ID),
		zap.Int("version", version.Version),
		zap.Int("totalDurationSeconds", version.TotalDurationSeconds))

	return version, nil, nil
}

// GetPublishedVersion loads the version sessions are opened against.
func (s *CourseService) GetPublishedVersion(courseID uint) (*model.Course, *model.CourseVersion, error) {
	course, err := s.GetCourse(courseID)
	if err != nil {
		return nil, nil, err
	}
	if course.PublishedVersion == 0 {
		return nil, nil, util.ErrCourseNotPublished
	}
	version, err := s.CourseRepo.FindVersion(courseID, course.PublishedVersion)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, util.ErrCourseNotPublished
		}
		return nil, nil, err
	}
	return course, version, nil
}

func (s *CourseService) GetVersion(courseID uint, version int) (*model.CourseVersion, error) {
	cv, err := s.CourseRepo.FindVersion(courseID, version)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCourseNotPublished
		}
		return nil, err
	}
	return cv, nil
}

// ClipUploadResult tells the authoring UI where the clip landed and
// how long it runs, so the author does not type durations by hand.
type ClipUploadResult struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"durationSeconds"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
}

// UploadClip stages the uploaded video, probes its duration and moves
// it into configured storage.
func (s *CourseService) UploadClip(ctx context.Context, file *multipart.FileHeader) (*ClipUploadResult, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	allowed := false
	for _, e := range util.AllowedVideoExtensions {
		if e == ext {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("unsupported video format %q", ext)
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "clip-*"+ext)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()

	info, err := util.GetVideoInfo(tmp.Name())
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("clips/%s%s", uuid.New().String(), ext)
	url, err := s.Storage.UploadFile(ctx, filename, tmp.Name(), util.MimeVideo+strings.TrimPrefix(ext, "."))
	if err != nil {
		return nil, err
	}

	return &ClipUploadResult{
		URL:             url,
		DurationSeconds: info.DurationSeconds(),
		Width:           info.Width,
		Height:          info.Height,
	}, nil
}
