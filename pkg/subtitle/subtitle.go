package subtitle

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// Format 字幕格式
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

// ContentType HTTP 下载用的 MIME 类型
func (f Format) ContentType() string {
	if f == FormatVTT {
		return "text/vtt; charset=utf-8"
	}
	return "application/x-subrip; charset=utf-8"
}

// Cue 一条字幕
type Cue struct {
	Start   float64
	End     float64
	Speaker string
	Text    string
}

// Write 按格式写出字幕
func Write(w io.Writer, format Format, cues []Cue) error {
	switch format {
	case FormatSRT:
		return GenerateSRT(w, cues)
	case FormatVTT:
		return GenerateVTT(w, cues)
	}
	return fmt.Errorf("不支持的字幕格式: %s", format)
}

// GenerateSRT 生成 SRT 字幕，说话人写在文本前面
//
//	1
//	00:00:00,000 --> 00:00:05,200
//	李经理: 字幕文本
func GenerateSRT(w io.Writer, cues []Cue) error {
	var builder strings.Builder
	index := 1

	for _, cue := range cues {
		text := strings.TrimSpace(cue.Text)
		if text == "" {
			continue
		}
		if cue.Speaker != "" {
			text = cue.Speaker + ": " + text
		}

		fmt.Fprintf(&builder, "%d\n", index)
		fmt.Fprintf(&builder, "%s --> %s\n", formatTime(cue.Start, ','), formatTime(cue.End, ','))
		fmt.Fprintf(&builder, "%s\n\n", text)
		index++
	}

	if _, err := io.WriteString(w, builder.String()); err != nil {
		return fmt.Errorf("写入 SRT 失败: %w", err)
	}
	return nil
}

// GenerateVTT 生成 WebVTT 字幕，说话人使用 <v> 标签
func GenerateVTT(w io.Writer, cues []Cue) error {
	var builder strings.Builder

	// VTT 文件必须以 "WEBVTT" 开头
	builder.WriteString("WEBVTT\n\n")

	index := 1
	for _, cue := range cues {
		text := strings.TrimSpace(cue.Text)
		if text == "" {
			continue
		}
		if cue.Speaker != "" {
			text = fmt.Sprintf("<v %s>%s", cue.Speaker, text)
		}

		fmt.Fprintf(&builder, "%d\n", index)
		fmt.Fprintf(&builder, "%s --> %s\n", formatTime(cue.Start, '.'), formatTime(cue.End, '.'))
		fmt.Fprintf(&builder, "%s\n\n", text)
		index++
	}

	if _, err := io.WriteString(w, builder.String()); err != nil {
		return fmt.Errorf("写入 VTT 失败: %w", err)
	}
	return nil
}

// formatTime 65.5 -> 00:01:05,500（SRT）或 00:01:05.500（VTT）
func formatTime(seconds float64, sep byte) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	millis := total % 1000
	secs := (total / 1000) % 60
	minutes := (total / 60000) % 60
	hours := total / 3600000

	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, secs, sep, millis)
}
