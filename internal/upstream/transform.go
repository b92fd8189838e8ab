// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package upstream

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// # Flattened Types

// Manga is the reduced, transport-agnostic view of one upstream record.
// This is what the catalogue layer consumes; wire types never escape this
// package.
type Manga struct {
	ID               string
	Title            string
	AltTitles        []LocalizedTitle
	Romanized        string
	Synopsis         string
	Status           string
	Year             *int
	TotalChapters    *int
	OriginalLanguage string
	CoverFileName    string
	Tags             []Tag
}

// LocalizedTitle pairs a language code with a title variant.
type LocalizedTitle struct {
	Language string `json:"language"`
	Title    string `json:"title"`
}

// Tag is one entry of the upstream tag dictionary.
type Tag struct {
	ID    string
	Name  string
	Group string
}

// # Localisation Preferences

// titleLanguages is the preference order for picking a display title or
// synopsis from a localised dictionary.
var titleLanguages = []string{"en", "ko", "ja"}

// romanizedLanguages are the alt-title keys that hold a romanised reading.
var romanizedLanguages = []string{"ja-ro", "ko-ro", "en-ro"}

// statusByName maps upstream publication statuses onto the catalogue's
// vocabulary. Unknown statuses default to ongoing.
var statusByName = map[string]string{
	"ongoing":   "ongoing",
	"completed": "completed",
	"hiatus":    "hiatus",
	"cancelled": "cancelled",
}

/*
transformManga reduces an upstream wire record to a [Manga].

Selection rules:
  - Title and synopsis prefer en, then ko, then ja, then any localisation.
  - The romanised title is the first alt-title keyed ja-ro, ko-ro, or en-ro.
  - Unknown statuses map to ongoing.
  - The cover filename comes from the cover_art relationship when present.
*/
func transformManga(data mangaData) Manga {
	attributes := data.Attributes

	manga := Manga{
		ID:               data.ID,
		Title:            pickLocalized(attributes.Title),
		Synopsis:         pickLocalized(attributes.Description),
		Status:           mapStatus(attributes.Status),
		Year:             attributes.Year,
		TotalChapters:    parseChapterCount(attributes.LastChapter),
		OriginalLanguage: attributes.OriginalLanguage,
	}

	// Keep the full alt-title set and extract the romanised reading.
	for _, altTitle := range attributes.AltTitles {
		for language, title := range altTitle {
			if title == "" {
				continue
			}
			manga.AltTitles = append(manga.AltTitles, LocalizedTitle{
				Language: language,
				Title:    title,
			})
		}
	}
	sort.SliceStable(manga.AltTitles, func(i, j int) bool {
		return manga.AltTitles[i].Language < manga.AltTitles[j].Language
	})
	manga.Romanized = pickRomanized(attributes.AltTitles)

	for _, related := range data.Relationships {
		if related.Type != "cover_art" || len(related.Attributes) == 0 {
			continue
		}
		var cover coverAttributes
		if err := json.Unmarshal(related.Attributes, &cover); err == nil {
			manga.CoverFileName = cover.FileName
		}
	}

	for _, tag := range attributes.Tags {
		manga.Tags = append(manga.Tags, transformTag(tag))
	}

	return manga
}

// transformTag flattens one tag dictionary entry, falling back to any
// localisation when the English name is missing.
func transformTag(data tagData) Tag {
	return Tag{
		ID:    data.ID,
		Name:  pickLocalized(data.Attributes.Name),
		Group: data.Attributes.Group,
	}
}

// pickLocalized selects a value from a language-keyed dictionary using the
// preference order, then falls back to the lexically first non-empty entry
// so the choice is deterministic.
func pickLocalized(localized map[string]string) string {
	for _, language := range titleLanguages {
		if value := localized[language]; value != "" {
			return value
		}
	}

	languages := make([]string, 0, len(localized))
	for language := range localized {
		languages = append(languages, language)
	}
	sort.Strings(languages)

	for _, language := range languages {
		if value := localized[language]; value != "" {
			return value
		}
	}
	return ""
}

// pickRomanized returns the first alt-title holding a romanised reading.
func pickRomanized(altTitles []map[string]string) string {
	for _, language := range romanizedLanguages {
		for _, altTitle := range altTitles {
			if value := altTitle[language]; value != "" {
				return value
			}
		}
	}
	return ""
}

// mapStatus normalises an upstream status, defaulting to ongoing.
func mapStatus(status string) string {
	if mapped, found := statusByName[strings.ToLower(status)]; found {
		return mapped
	}
	return "ongoing"
}

// parseChapterCount converts the upstream lastChapter string ("179",
// "179.5", "") into a whole-chapter count.
func parseChapterCount(lastChapter string) *int {
	if lastChapter == "" {
		return nil
	}
	value, err := strconv.ParseFloat(lastChapter, 64)
	if err != nil || value < 0 {
		return nil
	}
	count := int(value)
	return &count
}
