package model

import "time"

type NodeKind string

const (
	NodeStart   NodeKind = "start"
	NodeEnd     NodeKind = "end"
	NodeContent NodeKind = "content"
)

type ContentKind string

const (
	ContentVideo ContentKind = "video"
	ContentImage ContentKind = "image"
	ContentPDF   ContentKind = "pdf"
)

// Course is the authoring head. Publishing produces an immutable
// CourseVersion; sessions reference a version, never the head.
type Course struct {
	BaseModel
	OwnerID     uint   `gorm:"index;type:bigint unsigned" json:"ownerId"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	// Version of the latest published CourseVersion, 0 when unpublished.
	PublishedVersion int `gorm:"default:0" json:"publishedVersion"`
}

func (Course) TableName() string {
	return "courses"
}

// CourseVersion is one published, validated build of a course graph.
// Nodes and edges are stored as rows; LinearOrder and
// TotalDurationSeconds are computed once at publish time and never
// re-derived.
type CourseVersion struct {
	BaseModel
	CourseID             uint         `gorm:"index;type:bigint unsigned" json:"courseId"`
	Version              int          `gorm:"not null" json:"version"`
	Title                string       `gorm:"size:255;not null" json:"title"`
	LinearOrder          string       `gorm:"type:text" json:"linearOrder"` // JSON array of node ids
	TotalDurationSeconds int          `gorm:"default:0" json:"totalDurationSeconds"`
	PublishedAt          time.Time    `json:"publishedAt"`
	Nodes                []CourseNode `gorm:"foreignKey:CourseVersionID" json:"nodes"`
	Edges                []CourseEdge `gorm:"foreignKey:CourseVersionID" json:"edges"`
}

func (CourseVersion) TableName() string {
	return "course_versions"
}

type CourseNode struct {
	BaseModel
	CourseVersionID uint        `gorm:"index;type:bigint unsigned" json:"-"`
	NodeID          string      `gorm:"size:64;not null" json:"nodeId"`
	Kind            NodeKind    `gorm:"type:enum('start','end','content');not null" json:"kind"`
	ContentKind     ContentKind `gorm:"type:enum('video','image','pdf')" json:"contentKind,omitempty"`
	Title           string      `gorm:"size:255" json:"title"`
	MediaURL        string      `gorm:"size:512" json:"mediaUrl,omitempty"`
	DurationSeconds int         `gorm:"default:0" json:"durationSeconds"`
}

func (CourseNode) TableName() string {
	return "course_nodes"
}

type CourseEdge struct {
	BaseModel
	CourseVersionID uint   `gorm:"index;type:bigint unsigned" json:"-"`
	FromNode        string `gorm:"size:64;not null" json:"from"`
	ToNode          string `gorm:"size:64;not null" json:"to"`
	// Position is the edge's index in the authored edge list; it is the
	// deterministic tie-break for linearization.
	Position int `gorm:"not null" json:"position"`
}

func (CourseEdge) TableName() string {
	return "course_edges"
}

// Nationality rows back the closed attendee nationality code set.
type Nationality struct {
	BaseModel
	Code    string `gorm:"size:2;unique;not null" json:"code"`
	Name    string `gorm:"size:100;not null" json:"name"`
	Enabled bool   `gorm:"default:true" json:"enabled"`
}

func (Nationality) TableName() string {
	return "nationalities"
}
