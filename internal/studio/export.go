package studio

import (
	"fmt"
	"time"
)

// RenderFileName is the file name offered when a render is downloaded.
// ext includes the leading dot.
func RenderFileName(ext string, at time.Time) string {
	return fmt.Sprintf("StyleNow_Render_%d%s", at.UnixMilli(), ext)
}
