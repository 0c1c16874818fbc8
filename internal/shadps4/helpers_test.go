package shadps4

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleTROP = `<?xml version="1.0" encoding="UTF-8"?>
<trophyconf version="1.1" policy="large">
  <npcommid>NPWR00001_00</npcommid>
  <trophyset-version>01.00</trophyset-version>
  <title-name> Bloodborne </title-name>
  <title-detail>Hunt</title-detail>
  <trophy id="000" hidden="no" ttype="P" pid="000" unlockstate="true" timestamp="63844884000250999">
    <name>Bloodborne</name>
    <detail>All trophies obtained.</detail>
  </trophy>
  <trophy id="001" hidden="yes" ttype="B" pid="000">
    <name>Yharnam Sunrise</name>
    <detail>You lived through the night.</detail>
  </trophy>
  <trophy id="2" hidden="no" ttype="G" pid="000">
    <name>Cleric Beast</name>
    <detail>Defeat the Cleric Beast.</detail>
  </trophy>
  <trophy id="003" hidden="no" ttype="B" pid="000">
    <name>Father Gascoigne</name>
    <detail>Defeat Father Gascoigne.</detail>
  </trophy>
</trophyconf>
`

// writeTitle lays out <install>/user/game_data/<titleID>/trophyfiles with a
// TROP.XML and returns the trophyfiles directory.
func writeTitle(t *testing.T, install, titleID, trop string) string {
	t.Helper()
	trophyDir := TrophyDir(GameDataDir(install), titleID)
	xmlPath := TrophyXMLPath(trophyDir)
	if err := os.MkdirAll(filepath.Dir(xmlPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(xmlPath, []byte(trop), 0o644); err != nil {
		t.Fatalf("write TROP.XML: %v", err)
	}
	return trophyDir
}

func writeIcon(t *testing.T, trophyDir, name, contents string) {
	t.Helper()
	path := IconPath(trophyDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write icon: %v", err)
	}
}
