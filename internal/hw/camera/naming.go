package camera

import (
	"fmt"
	"path/filepath"
	"strings"
)

// outputPath expands the FileName template for shot and joins it to Dir.
//
// Placeholders:
//
//	{seq}          shot number in this session, zero padded (0001)
//	{id}           shot UUID
//	{time}         capture time, 20060102-150405
//	{camera}       camera product name, spaces replaced by '_'
//	{camera_file}  file name given by the camera without extension (IMG_0001)
//	{ext}          extension of the camera file name, lower case, with the dot
//
// The default template "captured_image.jpg" has no placeholders, so every
// capture overwrites the previous one.
func (o Options) outputPath(shot *Shot) string {
	ext := strings.ToLower(filepath.Ext(shot.CameraFile))
	base := strings.TrimSuffix(filepath.Base(shot.CameraFile), filepath.Ext(shot.CameraFile))
	if shot.CameraFile == "" {
		base = ""
	}
	r := strings.NewReplacer(
		"{seq}", fmt.Sprintf("%04d", shot.Seq),
		"{id}", shot.ID,
		"{time}", shot.TakenAt.Format("20060102-150405"),
		"{camera}", sanitize(shot.Camera),
		"{camera_file}", sanitize(base),
		"{ext}", ext,
	)
	return filepath.Join(o.Dir, r.Replace(o.FileName))
}

// sanitize keeps names usable as a single path element.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ':
			return '_'
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, s)
}
