package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "PAUL FLETCHER", Normalize("  paul   Fletcher "))
	assert.Equal(t, "AB", Normalize("ＡＢ"))
	assert.Equal(t, "", Normalize("   "))
}

func TestPartyOf(t *testing.T) {
	assert.Equal(t, "Liberal", PartyOf("Smith (Liberal)"))
	assert.Equal(t, "Independent", PartyOf("  Jones ( Independent ) "))
	assert.Equal(t, "", PartyOf("Smith"))
	assert.Equal(t, "", PartyOf("Smith)"))
	assert.Equal(t, "Smith", BareName("Smith (Liberal)"))
	assert.Equal(t, "Smith", BareName("Smith"))
}

func TestHasParty(t *testing.T) {
	assert.True(t, HasParty("Smith (Liberal)", "liberal"))
	assert.True(t, HasParty("Liberal/National Coalition", "Liberal"))
	assert.False(t, HasParty("Australian Labor Party", "Liberal"))
	assert.False(t, HasParty("anything", " "))
}

func TestSameCandidate(t *testing.T) {
	assert.True(t, SameCandidate("KAPTERIAN Gisele (Liberal)", "kapterian  gisele"))
	assert.False(t, SameCandidate("KAPTERIAN", "BOELE"))
	assert.False(t, SameCandidate("", ""))
}

func TestTCPLabels(t *testing.T) {
	assignments := []Assignment{
		{Electorate: "Bradfield", Position: 2, CandidateName: "BOELE Nicolette", Party: "Independent"},
		{Electorate: "Bradfield", Position: 1, CandidateName: "KAPTERIAN Gisele", Party: "Liberal"},
	}
	labels := TCPLabels(assignments, [2]string{"TCP 1", "TCP 2"})
	assert.Equal(t, [2]string{"KAPTERIAN Gisele (Liberal)", "BOELE Nicolette (Independent)"}, labels)

	partial := TCPLabels([]Assignment{{Position: 2, CandidateName: "BOELE"}, {Position: 7, CandidateName: "X"}}, [2]string{"TCP 1", "TCP 2"})
	assert.Equal(t, [2]string{"TCP 1", "BOELE"}, partial)
}

func TestPositionOf(t *testing.T) {
	labels := [2]string{"KAPTERIAN Gisele (Liberal)", "BOELE Nicolette (Independent)"}
	assert.Equal(t, 1, PositionOf("boele nicolette", labels))
	assert.Equal(t, 0, PositionOf("KAPTERIAN Gisele", labels))
	assert.Equal(t, -1, PositionOf("FLETCHER", labels))
}
