package upload

// Options controls a single upload
type Options struct {
	Folder string // folder template name, "default" when empty
	Origin bool   // link to the rendered blob view instead of the raw file
	DryRun bool
}

// Result lists the uploaded files in upload order
type Result struct {
	Folder string
	Commit string
	Files  []File
}

// File is an uploaded file and its share URL
type File struct {
	Path string // slash separated, relative to the repository root
	URL  string
}

// URLs maps every uploaded path to its share URL
func (r *Result) URLs() map[string]string {
	out := make(map[string]string, len(r.Files))
	for _, f := range r.Files {
		out[f.Path] = f.URL
	}
	return out
}

// Progress receives one step per uploaded input path
type Progress interface {
	Start(total int)
	Step(path string)
	Finish()
}
