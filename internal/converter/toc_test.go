package converter

import (
	"reflect"
	"testing"

	"github.com/yuanying/epubshelf/internal/book"
	"github.com/yuanying/epubshelf/internal/epub"
)

func testNav() *epub.NCX {
	return &epub.NCX{
		DocTitle: "Test Book",
		NavPoints: []epub.NavPoint{
			{
				Label:       "Chapter One",
				ContentPath: "OEBPS/./text/ch1.xhtml",
				Children: []epub.NavPoint{
					{Label: "Section 1.1", ContentPath: "OEBPS/text/ch1.xhtml", Fragment: "s1"},
				},
			},
			{Label: "Part Two"},
			{Label: "Chapter Two", ContentPath: "OEBPS/text/ch2.xhtml"},
		},
	}
}

func TestBuildTOC(t *testing.T) {
	got := BuildTOC(testNav())

	want := []book.TOCEntry{
		{
			Label:  "Chapter One",
			Target: "OEBPS/text/ch1.xhtml",
			Children: []book.TOCEntry{
				{Label: "Section 1.1", Target: "OEBPS/text/ch1.xhtml", Fragment: "s1"},
			},
		},
		{Label: "Part Two"},
		{Label: "Chapter Two", Target: "OEBPS/text/ch2.xhtml"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildTOC() = %+v, want %+v", got, want)
	}
}

func TestBuildTOC_Nil(t *testing.T) {
	if got := BuildTOC(nil); got != nil {
		t.Errorf("BuildTOC(nil) = %+v", got)
	}
}

func TestChapterLabels(t *testing.T) {
	labels := chapterLabels(testNav())

	if labels["OEBPS/text/ch1.xhtml"] != "Chapter One" {
		t.Errorf("labels = %v, want the first label per target", labels)
	}
	if labels["OEBPS/text/ch2.xhtml"] != "Chapter Two" {
		t.Errorf("labels = %v", labels)
	}
	if _, ok := labels[""]; ok {
		t.Error("targetless entries must not produce a label key")
	}
}

func TestChapterLabels_Nil(t *testing.T) {
	if labels := chapterLabels(nil); len(labels) != 0 {
		t.Errorf("chapterLabels(nil) = %v", labels)
	}
}
