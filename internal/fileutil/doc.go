// Package fileutil holds the verified file operations shared by the copy,
// move and delete stages.
package fileutil
