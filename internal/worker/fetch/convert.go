package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/pawbox/pawbox/internal/model"
)

const (
	// defaultAspect は取り込んだ作品カードの縦横比クラス。
	defaultAspect = "aspect-square"
	// maxSubtitleRunes はサブタイトルに使う本文の最大文字数。
	maxSubtitleRunes = 40
)

// TextSanitizer はフィード内のHTMLをプレーンテキストに変換する。
type TextSanitizer interface {
	PlainText(raw string) string
}

// categoryKeywords はタイトル・カテゴリから対象ペットを推定するキーワード。
var categoryKeywords = []struct {
	category model.Category
	words    []string
}{
	{model.CategoryCats, []string{"cat", "kitten", "고양이", "냥"}},
	{model.CategoryDogs, []string{"dog", "puppy", "강아지", "멍"}},
	{model.CategoryRabbits, []string{"rabbit", "bunny", "토끼"}},
}

// convertItems はフィードの記事をショーケース作品に変換する。
// タイトルか画像の無い記事は作品として扱わずに除外する。
func convertItems(sourceURL string, items []*gofeed.Item, sanitizer TextSanitizer) []*model.Build {
	builds := make([]*model.Build, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		title := sanitizer.PlainText(item.Title)
		image := itemImage(item)
		if title == "" || image == "" {
			continue
		}

		b := &model.Build{
			ID:          uuid.NewString(),
			SourceURL:   sourceURL,
			GUID:        itemGUID(item),
			Title:       title,
			Subtitle:    truncateRunes(sanitizer.PlainText(item.Description), maxSubtitleRunes),
			Category:    detectCategory(title, item.Categories),
			ImageURL:    image,
			Aspect:      defaultAspect,
			PublishedAt: itemPublished(item),
		}
		if item.Author != nil {
			b.Author = sanitizer.PlainText(item.Author.Name)
		}
		if b.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
			b.Author = sanitizer.PlainText(item.Authors[0].Name)
		}
		builds = append(builds, b)
	}
	return builds
}

// itemGUID は記事の同一性キーを返す。GUID、リンク、タイトルのハッシュの順に採用する。
func itemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if item.Link != "" {
		return item.Link
	}
	sum := sha256.Sum256([]byte(item.Title + "\x00" + item.Published))
	return hex.EncodeToString(sum[:])
}

func itemPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Now()
}

// itemImage は記事の代表画像URLを返す。
// item.Image、画像のenclosure、本文中の最初のimgタグの順に探す。
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && isHTTPURL(item.Image.URL) {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && isHTTPURL(enc.URL) {
			return enc.URL
		}
	}
	if src := firstImageSrc(item.Content); src != "" {
		return src
	}
	return firstImageSrc(item.Description)
}

// firstImageSrc はHTML断片から最初のimgタグのsrc属性を返す。
func firstImageSrc(fragment string) string {
	if fragment == "" {
		return ""
	}
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if string(key) == "src" && isHTTPURL(string(val)) {
					return string(val)
				}
				if !more {
					break
				}
			}
		}
	}
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// detectCategory はタイトルとフィードのカテゴリからペット種別を推定する。
func detectCategory(title string, categories []string) model.Category {
	haystack := strings.ToLower(title + " " + strings.Join(categories, " "))
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(haystack, w) {
				return ck.category
			}
		}
	}
	return model.CategoryOther
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
