package musicbrainz

import "strings"

type artistCredit []struct {
	Name       string `json:"name"`
	JoinPhrase string `json:"joinphrase"`
	Artist     struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artist"`
}

// String renders the credit the way MusicBrainz displays it.
func (a artistCredit) String() string {
	var b strings.Builder
	for _, credit := range a {
		name := credit.Name
		if name == "" {
			name = credit.Artist.Name
		}
		b.WriteString(name)
		b.WriteString(credit.JoinPhrase)
	}
	return b.String()
}

type releaseRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

type recordingSearchResponse struct {
	Count      int `json:"count"`
	Recordings []struct {
		ID           string       `json:"id"`
		Score        int          `json:"score"`
		Title        string       `json:"title"`
		Length       int          `json:"length"`
		ArtistCredit artistCredit `json:"artist-credit"`
		Releases     []releaseRef `json:"releases"`
	} `json:"recordings"`
}

type releaseSearchResponse struct {
	Count    int `json:"count"`
	Releases []struct {
		ID           string       `json:"id"`
		Score        int          `json:"score"`
		Title        string       `json:"title"`
		Date         string       `json:"date"`
		ArtistCredit artistCredit `json:"artist-credit"`
	} `json:"releases"`
}
