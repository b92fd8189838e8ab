// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package upstream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
TestPickLocalized verifies the language preference order and the
deterministic fallback when no preferred localisation exists.
*/
func TestPickLocalized(t *testing.T) {
	testCases := []struct {
		name      string
		localized map[string]string
		expected  string
	}{
		{
			name:      "english preferred",
			localized: map[string]string{"ko": "나 혼자만 레벨업", "en": "Solo Leveling"},
			expected:  "Solo Leveling",
		},
		{
			name:      "korean before japanese",
			localized: map[string]string{"ja": "俺だけレベルアップな件", "ko": "나 혼자만 레벨업"},
			expected:  "나 혼자만 레벨업",
		},
		{
			name:      "empty preferred entries are skipped",
			localized: map[string]string{"en": "", "ko": "나 혼자만 레벨업"},
			expected:  "나 혼자만 레벨업",
		},
		{
			name:      "fallback picks lexically first language",
			localized: map[string]string{"pt-br": "Nivelamento Solo", "fr": "Solo Leveling FR"},
			expected:  "Solo Leveling FR",
		},
		{
			name:      "empty dictionary",
			localized: map[string]string{},
			expected:  "",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.expected, pickLocalized(testCase.localized))
		})
	}
}

/*
TestMapStatus verifies case-insensitive status mapping with the ongoing
default for unknown values.
*/
func TestMapStatus(t *testing.T) {
	assert.Equal(t, "completed", mapStatus("Completed"))
	assert.Equal(t, "hiatus", mapStatus("hiatus"))
	assert.Equal(t, "cancelled", mapStatus("CANCELLED"))
	assert.Equal(t, "ongoing", mapStatus("axed"))
	assert.Equal(t, "ongoing", mapStatus(""))
}

/*
TestTransformManga covers the full record reduction: titles, romanised
reading, cover extraction, chapter count parsing, and tag flattening.
*/
func TestTransformManga(t *testing.T) {
	coverPayload, err := json.Marshal(coverAttributes{FileName: "cover-abc.jpg"})
	require.NoError(t, err)

	data := mangaData{
		ID:   "b1a2-c3d4",
		Type: "manga",
		Attributes: mangaAttributes{
			Title: map[string]string{"ko": "전지적 독자 시점"},
			AltTitles: []map[string]string{
				{"en": "Omniscient Reader's Viewpoint"},
				{"ko-ro": "Jeonjijeok Dokja Sijeom"},
			},
			Description:      map[string]string{"en": "Only I know how this world ends."},
			Status:           "ongoing",
			LastChapter:      "179.5",
			OriginalLanguage: "ko",
			Tags: []tagData{
				{ID: "t-1", Attributes: tagAttributes{Name: map[string]string{"en": "Action"}, Group: "genre"}},
				{ID: "t-2", Attributes: tagAttributes{Name: map[string]string{"ja": "アクション"}, Group: "theme"}},
			},
		},
		Relationships: []relationship{
			{ID: "a-1", Type: "author"},
			{ID: "c-1", Type: "cover_art", Attributes: coverPayload},
		},
	}

	manga := transformManga(data)

	assert.Equal(t, "b1a2-c3d4", manga.ID)
	assert.Equal(t, "전지적 독자 시점", manga.Title)
	assert.Equal(t, "Jeonjijeok Dokja Sijeom", manga.Romanized)
	assert.Equal(t, "Only I know how this world ends.", manga.Synopsis)
	assert.Equal(t, "ongoing", manga.Status)
	assert.Equal(t, "cover-abc.jpg", manga.CoverFileName)

	require.NotNil(t, manga.TotalChapters)
	assert.Equal(t, 179, *manga.TotalChapters)

	require.Len(t, manga.Tags, 2)
	assert.Equal(t, "Action", manga.Tags[0].Name)
	assert.Equal(t, "genre", manga.Tags[0].Group)
	// Missing English tag name falls back to another localisation.
	assert.Equal(t, "アクション", manga.Tags[1].Name)
}

/*
TestParseChapterCount verifies the lastChapter parsing edge cases.
*/
func TestParseChapterCount(t *testing.T) {
	require.NotNil(t, parseChapterCount("42"))
	assert.Equal(t, 42, *parseChapterCount("42"))
	assert.Equal(t, 179, *parseChapterCount("179.5"))
	assert.Nil(t, parseChapterCount(""))
	assert.Nil(t, parseChapterCount("extra"))
	assert.Nil(t, parseChapterCount("-3"))
}

/*
TestTransformManga_NoCover verifies that a record without a cover_art
relationship yields no cover filename.
*/
func TestTransformManga_NoCover(t *testing.T) {
	manga := transformManga(mangaData{
		ID: "x",
		Attributes: mangaAttributes{
			Title: map[string]string{"en": "No Cover"},
		},
		Relationships: []relationship{{ID: "a-1", Type: "author"}},
	})

	assert.Empty(t, manga.CoverFileName)
}
