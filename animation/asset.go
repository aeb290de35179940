package animation

import (
	"path/filepath"
	"strings"
)

// MediaKind is the media type of a source asset, derived from its extension.
type MediaKind string

const (
	KindUnknown MediaKind = ""
	KindAVIF    MediaKind = "avif"
	KindGIF     MediaKind = "gif"
	KindMP4     MediaKind = "mp4"
	KindJPEG    MediaKind = "jpeg"
	KindWebP    MediaKind = "webp"
	KindPNG     MediaKind = "png"
	KindSVG     MediaKind = "svg"
)

// OutputExt is the extension of every asset the pipeline produces.
const OutputExt = ".avif"

var kindsByExt = map[string]MediaKind{
	".avif": KindAVIF,
	".gif":  KindGIF,
	".mp4":  KindMP4,
	".jpg":  KindJPEG,
	".jpeg": KindJPEG,
	".webp": KindWebP,
	".png":  KindPNG,
	".svg":  KindSVG,
}

// KindFromPath sniffs the media kind from the file extension.
func KindFromPath(path string) MediaKind {
	return kindsByExt[strings.ToLower(filepath.Ext(path))]
}

// Asset is one source file handed to the pipeline.
type Asset struct {
	Path string
	Kind MediaKind
}

func NewAsset(path string) Asset {
	return Asset{Path: path, Kind: KindFromPath(path)}
}

// Name is the asset's base file name, used in logs.
func (a Asset) Name() string {
	return filepath.Base(a.Path)
}

// OutputPath returns dir joined with the source base name, its extension
// replaced by ext.
func OutputPath(dir, src, ext string) string {
	base := filepath.Base(src)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+ext)
}
