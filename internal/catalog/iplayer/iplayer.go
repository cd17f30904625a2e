package iplayer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/filmrank/internal/catalog"
	"github.com/John-Robertt/filmrank/internal/domain"
	"github.com/John-Robertt/filmrank/internal/infra/httpx"
)

const (
	defaultBaseURL    = "https://www.bbc.co.uk"
	defaultListingURL = "https://www.bbc.co.uk/iplayer/categories/films/a-z"
)

// Lister 实现 BBC iPlayer 影片 A–Z 列表的抓取与解析。
//
// 约束：
// - Fetch 不做缓存/限速（由发现循环统一控制）
// - Parse 必须是纯函数（依赖输入 html + pageURL）
// - 页面结构漂移只允许影响本包
type Lister struct {
	// BaseURL 用于把条目的相对链接还原为绝对 URL；为空时使用默认域名。
	BaseURL string
	// ListingURL 是列表入口（不带 page 参数）；为空时使用默认的影片 A–Z 列表。
	ListingURL string
}

func (Lister) Name() string { return "iplayer" }

func (l Lister) baseURL() string {
	u := strings.TrimSpace(l.BaseURL)
	if u == "" {
		return defaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

func (l Lister) listingURL() string {
	u := strings.TrimSpace(l.ListingURL)
	if u == "" {
		return defaultListingURL
	}
	return u
}

// Fetch 抓取第 page 页列表：<listing>?page=N。
func (l Lister) Fetch(ctx context.Context, page int, c *http.Client) ([]byte, string, error) {
	if c == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	if page < 1 {
		return nil, "", errors.New("page 必须从 1 开始")
	}

	u, err := url.Parse(l.listingURL())
	if err != nil {
		return nil, "", err
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	pageURL := u.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")

	resp, err := c.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &httpx.StatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(resp.Body)
	return b, pageURL, err
}

// Parse 把一页列表 HTML 解析为目录条目与分页信息。
//
// 条目要求：标题必填；链接/描述/缩略图尽量提取，缺了不失败。
// 单个条目提取异常只丢弃该条目（计入 Skipped），绝不让整页失败。
func (l Lister) Parse(html []byte, pageURL string) (catalog.Page, error) {
	if len(html) == 0 {
		return catalog.Page{}, errors.New("html 为空")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return catalog.Page{}, err
	}

	var pg catalog.Page

	doc.Find("a.content-item-root").Each(func(_ int, s *goquery.Selection) {
		title := normSpace(s.Find("div.content-item-root__meta").First().Text())
		if title == "" {
			pg.Skipped++
			return
		}

		href, _ := s.Attr("href")
		detail := resolveURL(l.baseURL()+"/", href)

		// 描述藏在 aria-label 里："<title>. Description: <desc>. Duration: ..."
		desc := descriptionFromAria(s.AttrOr("aria-label", ""))

		thumb := ""
		if srcset, ok := s.Find("img.rs-image__img").First().Attr("srcset"); ok {
			thumb = firstSrc(srcset)
		}

		pg.Entries = append(pg.Entries, domain.CatalogEntry{
			Title:       title,
			PageURL:     detail,
			Description: desc,
			Thumbnail:   thumb,
		})
	})

	// 分页块：存在即 HasPagination；页码从编号按钮里尽量提取（提取不到也不算错）。
	pagination := doc.Find("ol.pagination__list").First()
	if pagination.Length() > 0 {
		pg.HasPagination = true
		pagination.Find("a.button--numeral").Each(func(_ int, a *goquery.Selection) {
			n, err := strconv.Atoi(strings.TrimSpace(a.Text()))
			if err != nil || n < 1 {
				return
			}
			pg.PageNumbers = append(pg.PageNumbers, n)
		})
	}

	return pg, nil
}

// descriptionFromAria 从 aria-label 中截取描述段。
// 格式约定："… Description: <desc>. Duration: …"；缺任一锚点时尽量给出合理退化。
func descriptionFromAria(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	const descMark = ". Description: "
	const durMark = ". Duration:"

	if i := strings.LastIndex(label, descMark); i >= 0 {
		label = label[i+len(descMark):]
	}
	if i := strings.Index(label, durMark); i >= 0 {
		label = label[:i]
	}
	return strings.TrimSpace(label)
}

// firstSrc 取 srcset 的第一个候选 URL（"url1 240w, url2 480w" => url1）。
func firstSrc(srcset string) string {
	srcset = strings.TrimSpace(srcset)
	if srcset == "" {
		return ""
	}
	first := srcset
	if i := strings.IndexByte(first, ','); i >= 0 {
		first = first[:i]
	}
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
