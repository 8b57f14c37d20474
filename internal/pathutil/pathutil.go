// Package pathutil normalizes the storage paths that flow through
// manifests, tracker rows, and component folder configuration.
//
// Studio uploads arrive with a mix of forward and backward slashes and
// inconsistent leading/trailing separators; every comparison in the
// delivery pipeline happens on the normalized form.
package pathutil

import "strings"

// Normalize converts backslashes to forward slashes and strips leading
// and trailing separators. A trailing slash in the input is preserved so
// folder prefixes keep their terminator.
func Normalize(path string) string {
	if path == "" {
		return ""
	}
	hadTrailing := strings.HasSuffix(path, "/") || strings.HasSuffix(path, "\\")
	cleaned := strings.Trim(strings.ReplaceAll(path, "\\", "/"), "/")
	if hadTrailing && cleaned != "" {
		cleaned += "/"
	}
	return cleaned
}

// StripTitlePrefix removes a leading "{title}.{version}/" or
// "{title}_{version}/" segment when present. Only the first matching
// variant is stripped.
func StripTitlePrefix(path, titleID, versionID string) string {
	for _, prefix := range []string{titleID + "." + versionID + "/", titleID + "_" + versionID + "/"} {
		if strings.HasPrefix(path, prefix) {
			return path[len(prefix):]
		}
	}
	return path
}

// StripFilename removes a trailing filename segment from a folder path
// when the path ends with it, with or without a separating slash.
func StripFilename(folderPath, filename string) string {
	if filename == "" {
		return folderPath
	}
	if strings.HasSuffix(folderPath, "/"+filename) {
		return folderPath[:len(folderPath)-len(filename)-1]
	}
	if strings.HasSuffix(folderPath, filename) {
		return strings.TrimRight(folderPath[:len(folderPath)-len(filename)], "/")
	}
	return folderPath
}

// FolderOf returns the folder portion of a storage key, dropping the
// final path segment.
func FolderOf(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return ""
	}
	return key[:idx]
}

// BaseName returns the final path segment of a storage key.
func BaseName(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return key
	}
	return key[idx+1:]
}

// Join concatenates folder and name with a single separator, tolerating
// an empty folder.
func Join(folder, name string) string {
	folder = strings.TrimRight(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
