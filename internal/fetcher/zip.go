package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// shapefileParts are the sidecar extensions read next to a .shp.
var shapefileParts = map[string]bool{".shp": true, ".shx": true, ".dbf": true, ".prj": true, ".cpg": true}

// ExtractShapefile unpacks the shapefile members of a ZIP archive into
// destDir and returns the path of the .shp. Folders inside the archive are
// flattened; other files are ignored. When the archive holds several
// layers, the first .shp by name is returned.
func ExtractShapefile(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: open archive %s", filepath.Base(zipPath))
	}
	defer r.Close() //nolint:errcheck

	var shps []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.Contains(f.Name, "..") {
			return "", eris.Errorf("fetcher: illegal archive path %q", f.Name)
		}
		name := path.Base(strings.ReplaceAll(f.Name, `\`, "/"))
		ext := strings.ToLower(filepath.Ext(name))
		if !shapefileParts[ext] {
			continue
		}
		dest := filepath.Join(destDir, name)
		if err := writeZIPMember(f, dest); err != nil {
			return "", err
		}
		if ext == ".shp" {
			shps = append(shps, dest)
		}
	}

	if len(shps) == 0 {
		return "", eris.Errorf("fetcher: no .shp file in %s", filepath.Base(zipPath))
	}
	sort.Strings(shps)
	return shps[0], nil
}

func writeZIPMember(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "fetcher: open %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "fetcher: create %s", dest)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close() //nolint:errcheck
		return eris.Wrapf(err, "fetcher: extract %s", f.Name)
	}
	return eris.Wrapf(out.Close(), "fetcher: close %s", dest)
}
