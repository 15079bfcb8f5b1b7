package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Ad types produced by the content generation stage.
const (
	AdTypeText  = "text_ad"
	AdTypeImage = "image_ad"
	AdTypeVideo = "video_ad"
)

// Content asset statuses.
const (
	AssetGenerated = "generated"
	AssetRevised   = "revised"
	AssetFailed    = "failed"
)

// ContentAsset is one advertisement unit tied to an audience-platform
// pair. Created by content generation, optionally revised in place
// (same AssetID), never deleted.
type ContentAsset struct {
	AssetID  string `json:"asset_id"`
	Audience string `json:"audience"`
	Platform string `json:"platform"`
	AdType   string `json:"ad_type"`
	// Content is either inline ad copy or an external resource locator
	// (s3:// or job://) to be resolved to a durable URL.
	Content string `json:"content"`
	Status  string `json:"status"`
	// ResolveError marks an asset whose locator could not be resolved.
	// The original locator is kept in Content in that case.
	ResolveError string `json:"resolve_error,omitempty"`
}

// IsLocator reports whether Content is an external resource locator
// rather than inline text.
func (a ContentAsset) IsLocator() bool {
	return strings.HasPrefix(a.Content, "s3://") || strings.HasPrefix(a.Content, "job://")
}

// ContentSet is the content generation stage payload.
type ContentSet struct {
	Ads []ContentAsset `json:"ads"`
}

// NormalizeAssets converts a parsed stage payload into typed content
// assets. Agents may return either the canonical {"ads": [...]} shape or
// a loose {"content": [...]} list of string-keyed maps; both are accepted
// here so the rest of the pipeline never branches on shape.
func NormalizeAssets(v any) ([]ContentAsset, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal content payload: %w", err)
	}

	var set ContentSet
	if err := json.Unmarshal(raw, &set); err == nil && len(set.Ads) > 0 {
		return fillAssetDefaults(set.Ads), nil
	}

	var loose struct {
		Content []map[string]any `json:"content"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil || len(loose.Content) == 0 {
		return nil, fmt.Errorf("content payload has neither ads nor content entries")
	}

	assets := make([]ContentAsset, 0, len(loose.Content))
	for i, m := range loose.Content {
		a := ContentAsset{
			AssetID:  stringField(m, "asset_id", "id"),
			Audience: stringField(m, "audience", "title"),
			Platform: stringField(m, "platform"),
			AdType:   looseAdType(stringField(m, "ad_type", "type")),
			Content:  stringField(m, "content", "url", "description"),
			Status:   stringField(m, "status"),
		}
		if a.AssetID == "" {
			a.AssetID = fmt.Sprintf("asset-%03d", i+1)
		}
		assets = append(assets, a)
	}
	return fillAssetDefaults(assets), nil
}

func fillAssetDefaults(assets []ContentAsset) []ContentAsset {
	for i := range assets {
		if assets[i].Status == "" {
			assets[i].Status = AssetGenerated
		}
		if assets[i].AdType == "" {
			assets[i].AdType = AdTypeText
		}
	}
	return assets
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func looseAdType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "image", AdTypeImage:
		return AdTypeImage
	case "video", AdTypeVideo:
		return AdTypeVideo
	case "text", AdTypeText:
		return AdTypeText
	default:
		return t
	}
}
