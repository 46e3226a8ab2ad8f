package recipe

import "strings"

// FormatDistfile expands a distfile filename template's "{name}" and
// "{version}" placeholders.
func FormatDistfile(template, name, version string) string {
	r := strings.NewReplacer("{name}", name, "{version}", version)
	return r.Replace(template)
}

// DistfileURL joins a distfile_url_base with a filename. The base is
// expected to already end in "/".
func DistfileURL(base, distfile string) string {
	return base + distfile
}
