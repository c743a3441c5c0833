package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"factseeker/internal/logger"
)

// videoIDPatterns match the YouTube URL shapes in circulation: watch pages,
// short links, embeds, and shorts.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/watch\?.*v=([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
}

// transcriptLanguages is the preference order for caption tracks.
var transcriptLanguages = []string{"ko", "en"}

// VideoID extracts the video ID from a YouTube URL.
func VideoID(youtubeURL string) (string, error) {
	for _, pattern := range videoIDPatterns {
		if matches := pattern.FindStringSubmatch(youtubeURL); len(matches) > 1 {
			return matches[1], nil
		}
	}
	return "", fmt.Errorf("could not extract video ID from URL: %s", youtubeURL)
}

// IsYouTubeURL checks if a URL is a YouTube video URL.
func IsYouTubeURL(urlStr string) bool {
	_, err := VideoID(urlStr)
	return err == nil
}

type captionTrackList struct {
	Tracks []struct {
		LangCode string `xml:"lang_code,attr"`
		Name     string `xml:"name,attr"`
	} `xml:"track"`
}

type captionTranscript struct {
	Texts []struct {
		Content string `xml:",chardata"`
	} `xml:"text"`
}

// FetchTranscript fetches the caption track of a YouTube video and joins it
// into a single text. Korean tracks are preferred, then English, then
// whatever is listed first. Videos without captions yield ("", nil); the
// caller decides whether an empty transcript is fatal.
func (f *TextFetcher) FetchTranscript(ctx context.Context, youtubeURL string) (string, error) {
	videoID, err := VideoID(youtubeURL)
	if err != nil {
		return "", err
	}

	lang, name, err := f.pickTranscriptTrack(ctx, videoID)
	if err != nil {
		logger.Warn("No caption track available", "video_id", videoID, "error", err.Error())
		return "", nil
	}

	params := url.Values{}
	params.Set("v", videoID)
	params.Set("lang", lang)
	if name != "" {
		params.Set("name", name)
	}
	body, err := f.get(ctx, f.timedtextBase+"?"+params.Encode())
	if err != nil {
		logger.Warn("Caption download failed", "video_id", videoID, "lang", lang, "error", err.Error())
		return "", nil
	}

	var transcript captionTranscript
	if err := xml.Unmarshal(body, &transcript); err != nil {
		logger.Warn("Caption parse failed", "video_id", videoID, "error", err.Error())
		return "", nil
	}

	parts := make([]string, 0, len(transcript.Texts))
	for _, t := range transcript.Texts {
		text := html.UnescapeString(strings.TrimSpace(t.Content))
		text = strings.ReplaceAll(text, "\n", " ")
		if text != "" {
			parts = append(parts, text)
		}
	}
	return collapseWhitespace(strings.Join(parts, " ")), nil
}

// pickTranscriptTrack lists the video's caption tracks and picks the best
// language match.
func (f *TextFetcher) pickTranscriptTrack(ctx context.Context, videoID string) (lang, name string, err error) {
	params := url.Values{}
	params.Set("type", "list")
	params.Set("v", videoID)
	body, err := f.get(ctx, f.timedtextBase+"?"+params.Encode())
	if err != nil {
		return "", "", fmt.Errorf("caption track list: %w", err)
	}

	var list captionTrackList
	if err := xml.Unmarshal(body, &list); err != nil {
		return "", "", fmt.Errorf("caption track list parse: %w", err)
	}
	if len(list.Tracks) == 0 {
		return "", "", fmt.Errorf("no caption tracks for video %s", videoID)
	}

	for _, preferred := range transcriptLanguages {
		for _, track := range list.Tracks {
			if track.LangCode == preferred {
				return track.LangCode, track.Name, nil
			}
		}
	}
	return list.Tracks[0].LangCode, list.Tracks[0].Name, nil
}
