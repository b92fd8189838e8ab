// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package upstream

import "encoding/json"

// # Wire Types
//
// These structs mirror the upstream catalogue's JSON envelope. They exist
// only for decoding; the rest of the system consumes the flattened Manga
// and Tag types produced by the transform step.

// mangaResponse is the envelope for a single-entity fetch.
type mangaResponse struct {
	Result string    `json:"result"`
	Data   mangaData `json:"data"`
}

// mangaListResponse is the envelope for search results.
type mangaListResponse struct {
	Result string      `json:"result"`
	Data   []mangaData `json:"data"`
	Total  int         `json:"total"`
}

// mangaData is one manga record with its relationship graph.
type mangaData struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Attributes    mangaAttributes `json:"attributes"`
	Relationships []relationship  `json:"relationships"`
}

// mangaAttributes holds the localised and scalar fields of a record.
// Title and Description are language-code keyed dictionaries.
type mangaAttributes struct {
	Title            map[string]string   `json:"title"`
	AltTitles        []map[string]string `json:"altTitles"`
	Description      map[string]string   `json:"description"`
	Status           string              `json:"status"`
	Year             *int                `json:"year"`
	LastChapter      string              `json:"lastChapter"`
	OriginalLanguage string              `json:"originalLanguage"`
	Tags             []tagData           `json:"tags"`
}

// relationship links a record to a related entity. Attributes is decoded
// lazily because its shape depends on Type (cover_art, author, artist).
type relationship struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
}

// coverAttributes is the attribute payload of a cover_art relationship.
type coverAttributes struct {
	FileName string `json:"fileName"`
}

// tagData is one tag entry inside a record or the tag dictionary.
type tagData struct {
	ID         string        `json:"id"`
	Attributes tagAttributes `json:"attributes"`
}

// tagAttributes carries the localised tag name and its group
// (genre, theme, format, content).
type tagAttributes struct {
	Name  map[string]string `json:"name"`
	Group string            `json:"group"`
}

// tagListResponse is the envelope for the tag dictionary.
type tagListResponse struct {
	Result string    `json:"result"`
	Data   []tagData `json:"data"`
}

// authResponse is the envelope returned by the login endpoint.
type authResponse struct {
	Result string    `json:"result"`
	Token  authToken `json:"token"`
}

// authToken holds the short-lived session token and its refresh companion.
type authToken struct {
	Session string `json:"session"`
	Refresh string `json:"refresh"`
}

// errorResponse is the upstream error envelope.
type errorResponse struct {
	Result string     `json:"result"`
	Errors []apiError `json:"errors"`
}

// apiError is one upstream error entry. Title carries the machine-readable
// exception name used for error normalisation.
type apiError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
