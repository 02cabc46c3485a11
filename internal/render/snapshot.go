package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/deft-reversi-go/internal/msgcat"
	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// ImageOptions carries the HUD texts drawn around the board.
type ImageOptions struct {
	Title  string
	Score  string
	Turn   string
	Banner string
}

const (
	squareSize   = 64
	boardSquares = 8
	boardSize    = squareSize * boardSquares
	sideMargin   = 36
	topMargin    = 110
	bottomMargin = 64
)

// ImageSize is the pixel size of every PNG produced by RenderPNG.
var ImageSize = image.Pt(boardSize+sideMargin*2, boardSize+topMargin+bottomMargin)

var (
	boardGreen          = color.RGBA{34, 120, 74, 255}
	gridLineColor       = color.NRGBA{R: 12, G: 52, B: 30, A: 255}
	lastMoveFill        = color.NRGBA{R: 255, G: 228, B: 120, A: 110}
	evalPositiveColor   = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	evalNegativeColor   = color.NRGBA{R: 255, G: 170, B: 160, A: 255}
	backgroundColor     = color.RGBA{22, 24, 34, 255}
	hudPanelColor       = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTurnPanelColor   = color.NRGBA{R: 32, G: 35, B: 52, A: 245}
	hudShadowColor      = color.NRGBA{0, 0, 0, 50}
	hudTextPrimary      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTurnTextColor    = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	boardShadowColor    = color.NRGBA{0, 0, 0, 60}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// RenderPNG draws st with its HUD. A nil status draws an empty board.
func RenderPNG(ctx context.Context, st *reversidto.BoardStatus, opts ImageOptions) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	boardOrigin := image.Point{X: sideMargin, Y: topMargin}
	boardRect := image.Rect(boardOrigin.X, boardOrigin.Y, boardOrigin.X+boardSize, boardOrigin.Y+boardSize)

	img := image.NewRGBA(image.Rectangle{Max: ImageSize})
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	face := basicfont.Face7x13
	drawHUD(img, face, opts, boardRect)
	drawBoardShadow(img, boardRect)
	drawSquares(img, boardOrigin)
	if st != nil {
		drawLastMove(img, st, boardOrigin)
		if err := drawDiscs(img, st, boardOrigin); err != nil {
			return nil, err
		}
		drawEval(img, face, st, boardOrigin)
	}
	drawCoordinates(img, face, boardOrigin)
	drawBanner(img, face, opts.Banner, boardRect)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return pngBuf.Bytes(), nil
}

func cellRect(cell int, origin image.Point) image.Rectangle {
	row, col := cell/boardSquares, cell%boardSquares
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func drawBoardShadow(img *image.RGBA, boardRect image.Rectangle) {
	shadowRect := image.Rect(
		boardRect.Min.X+4,
		boardRect.Min.Y+8,
		boardRect.Max.X+10,
		boardRect.Max.Y+12,
	)
	imagedraw.Draw(img, shadowRect, image.NewUniform(boardShadowColor), image.Point{}, imagedraw.Over)
}

func drawSquares(dst *image.RGBA, origin image.Point) {
	for cell := 0; cell < reversidto.BoardCells; cell++ {
		r := cellRect(cell, origin)
		imagedraw.Draw(dst, r, image.NewUniform(gridLineColor), image.Point{}, imagedraw.Src)
		imagedraw.Draw(dst, r.Inset(1), image.NewUniform(boardGreen), image.Point{}, imagedraw.Src)
	}
	// star points
	for _, p := range []image.Point{{2, 2}, {2, 6}, {6, 2}, {6, 6}} {
		center := image.Pt(origin.X+p.X*squareSize, origin.Y+p.Y*squareSize)
		drawDisc(dst, center, 4, gridLineColor)
	}
}

func drawLastMove(img *image.RGBA, st *reversidto.BoardStatus, origin image.Point) {
	if st.LastMove == nil || *st.LastMove < 0 || *st.LastMove >= reversidto.BoardCells {
		return
	}
	r := cellRect(*st.LastMove, origin).Inset(1)
	imagedraw.Draw(img, r, image.NewUniform(lastMoveFill), image.Point{}, imagedraw.Over)
}

func drawDiscs(dst *image.RGBA, st *reversidto.BoardStatus, origin image.Point) error {
	eval := len(st.Eval) == reversidto.BoardCells
	for cell := 0; cell < reversidto.BoardCells; cell++ {
		kind, ok := discFor(st, cell, eval)
		if !ok {
			continue
		}
		glyph, err := renderDiscImage(kind, squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, cellRect(cell, origin), glyph, image.Point{}, imagedraw.Over)
	}
	return nil
}

func discFor(st *reversidto.BoardStatus, cell int, eval bool) (discKind, bool) {
	if side, ok := st.CellSide(cell); ok {
		if side == reversidto.White {
			return discWhite, true
		}
		return discBlack, true
	}
	if st.HumanOpeningNextMove != nil && *st.HumanOpeningNextMove == cell {
		return discBook, true
	}
	// scores take the place of the dot
	if st.IsLegal(cell) && !eval {
		return discLegal, true
	}
	return 0, false
}

func drawEval(img *image.RGBA, face font.Face, st *reversidto.BoardStatus, origin image.Point) {
	if len(st.Eval) != reversidto.BoardCells {
		return
	}
	drawer := &font.Drawer{Dst: img, Face: face}
	for cell := 0; cell < reversidto.BoardCells; cell++ {
		if !st.IsLegal(cell) {
			continue
		}
		v, _ := st.EvalAt(cell)
		clr := evalPositiveColor
		if v < 0 {
			clr = evalNegativeColor
		}
		drawCenteredString(drawer, cellRect(cell, origin), strconv.Itoa(v), clr)
	}
}

func drawHUD(img *image.RGBA, face font.Face, opts ImageOptions, boardRect image.Rectangle) {
	const (
		titleHeight          = 40
		secondaryPanelHeight = 32
		gapBetweenPanels     = 14
		gapToBoard           = 22
		radius               = 12
		titlePaddingX        = 28
		scorePaddingX        = 24
		turnPaddingX         = 20
		titleMinWidth        = 220
		scoreMinWidth        = 96
		turnMinWidth         = 140
		shadowOffsetY        = 6
	)

	drawer := &font.Drawer{Dst: img, Face: face}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = "Reversi"
	}
	scoreText := strings.TrimSpace(opts.Score)
	turnText := strings.TrimSpace(opts.Turn)

	turnBottom := boardRect.Min.Y - gapToBoard
	turnTop := turnBottom - secondaryPanelHeight
	titleBottom := turnTop - gapBetweenPanels
	titleTop := titleBottom - titleHeight

	measure := func(text string, padding, minWidth int) int {
		return max(drawer.MeasureString(text).Round()+padding*2, minWidth)
	}
	scoreWidth := measure(scoreText, scorePaddingX, scoreMinWidth)
	titleWidth := measure(title, titlePaddingX, titleMinWidth)
	titleWidth = min(titleWidth, max(boardRect.Dx()-scoreWidth-24, titleMinWidth))
	turnWidth := min(measure(turnText, turnPaddingX, turnMinWidth), boardRect.Dx()-40)

	titleRect := image.Rect(boardRect.Min.X, titleTop, boardRect.Min.X+titleWidth, titleBottom)
	scoreRect := image.Rect(boardRect.Max.X-scoreWidth, titleTop, boardRect.Max.X, titleBottom)
	turnLeft := boardRect.Min.X + (boardRect.Dx()-turnWidth)/2
	turnRect := image.Rect(turnLeft, turnTop, turnLeft+turnWidth, turnBottom)

	panels := []image.Rectangle{titleRect, turnRect}
	if scoreText != "" {
		panels = append(panels, scoreRect)
	}
	for _, r := range panels {
		drawRoundedPanel(img, r.Add(image.Pt(0, shadowOffsetY)), radius, hudShadowColor)
	}

	title = truncateWithEllipsis(face, title, titleRect.Dx()-titlePaddingX*2)
	turnText = truncateWithEllipsis(face, turnText, turnRect.Dx()-turnPaddingX*2)

	drawRoundedPanel(img, titleRect, radius, hudPanelColor)
	drawRoundedPanel(img, turnRect, radius, hudTurnPanelColor)
	drawCenteredString(drawer, titleRect, title, hudTextPrimary)
	drawCenteredString(drawer, turnRect, turnText, hudTurnTextColor)
	if scoreText != "" {
		drawRoundedPanel(img, scoreRect, radius, hudPanelColor)
		drawCenteredString(drawer, scoreRect, scoreText, hudTextPrimary)
	}
}

func drawBanner(img *image.RGBA, face font.Face, text string, boardRect image.Rectangle) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	rect := image.Rect(boardRect.Min.X, boardRect.Max.Y+26, boardRect.Max.X, boardRect.Max.Y+56)
	drawRoundedPanel(img, rect, 10, hudTurnPanelColor)
	drawer := &font.Drawer{Dst: img, Face: face}
	drawCenteredString(drawer, rect, truncateWithEllipsis(face, text, rect.Dx()-24), hudTextPrimary)
}

func drawCoordinates(dst *image.RGBA, face font.Face, origin image.Point) {
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(coordinateTextColor)}
	ascent := face.Metrics().Ascent.Ceil()
	for i := 0; i < boardSquares; i++ {
		center := i*squareSize + squareSize/2
		drawCenteredText(drawer, string(rune('a'+i)), origin.X+center, origin.Y+boardSize+ascent+4)
		drawCenteredText(drawer, strconv.Itoa(i+1), origin.X-sideMargin/2, origin.Y+center+ascent/2)
	}
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || maxWidth <= 0 || face == nil {
		return trimmed
	}

	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(trimmed).Round() <= maxWidth {
		return trimmed
	}

	ellipsis := "..."
	if drawer.MeasureString(ellipsis).Round() > maxWidth {
		return ""
	}

	runes := []rune(trimmed)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if rect.Empty() {
		return
	}
	radius = max(0, min(radius, rect.Dx()/2, rect.Dy()/2))
	fill := image.NewUniform(clr)
	if radius == 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}

	// 세 개의 겹치지 않는 띠 + 네 모서리
	core := image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y)
	imagedraw.Draw(img, core, fill, image.Point{}, imagedraw.Over)
	left := image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius)
	imagedraw.Draw(img, left, fill, image.Point{}, imagedraw.Over)
	right := image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius)
	imagedraw.Draw(img, right, fill, image.Point{}, imagedraw.Over)

	corners := []struct {
		center image.Point
		clip   image.Rectangle
	}{
		{image.Pt(rect.Min.X+radius, rect.Min.Y+radius), image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+radius, rect.Min.Y+radius)},
		{image.Pt(rect.Max.X-radius-1, rect.Min.Y+radius), image.Rect(rect.Max.X-radius, rect.Min.Y, rect.Max.X, rect.Min.Y+radius)},
		{image.Pt(rect.Min.X+radius, rect.Max.Y-radius-1), image.Rect(rect.Min.X, rect.Max.Y-radius, rect.Min.X+radius, rect.Max.Y)},
		{image.Pt(rect.Max.X-radius-1, rect.Max.Y-radius-1), image.Rect(rect.Max.X-radius, rect.Max.Y-radius, rect.Max.X, rect.Max.Y)},
	}
	for _, c := range corners {
		drawDiscClipped(img, c.center, radius, clr, c.clip)
	}
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	text = strings.TrimSpace(text)
	if drawer == nil || text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := max(rect.Min.X+(rect.Dx()-width)/2, rect.Min.X)
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func drawDisc(img *image.RGBA, center image.Point, radius int, clr color.Color) {
	drawDiscClipped(img, center, radius, clr, img.Bounds())
}

func drawDiscClipped(img *image.RGBA, center image.Point, radius int, clr color.Color, clip image.Rectangle) {
	if radius <= 0 {
		blendPixel(img, center.X, center.Y, clr, clip)
		return
	}
	rSquared := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > rSquared {
				continue
			}
			blendPixel(img, center.X+x, center.Y+y, clr, clip)
		}
	}
}

// blendPixel composites clr over the pixel at (x, y) when it lies inside clip.
func blendPixel(img *image.RGBA, x, y int, clr color.Color, clip image.Rectangle) {
	p := image.Point{X: x, Y: y}
	if !p.In(img.Bounds()) || !p.In(clip) {
		return
	}

	sr, sg, sb, sa := clr.RGBA()
	srcA := float64(sa) / 65535.0
	if srcA <= 0 {
		return
	}
	// RGBA() is premultiplied
	srcR := float64(sr) / 65535.0
	srcG := float64(sg) / 65535.0
	srcB := float64(sb) / 65535.0

	dst := img.RGBAAt(x, y)
	dstR := float64(dst.R) / 255.0
	dstG := float64(dst.G) / 255.0
	dstB := float64(dst.B) / 255.0
	dstA := float64(dst.A) / 255.0

	img.SetRGBA(x, y, color.RGBA{
		R: floatToUint8((srcR + dstR*(1-srcA)) * 255.0),
		G: floatToUint8((srcG + dstG*(1-srcA)) * 255.0),
		B: floatToUint8((srcB + dstB*(1-srcA)) * 255.0),
		A: floatToUint8((srcA + dstA*(1-srcA)) * 255.0),
	})
}

func floatToUint8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// Snapshot keeps a PNG file in sync with the latest paint. Pass and end-of-game
// messages are drawn as a banner under the board.
type Snapshot struct {
	path   string
	cat    *msgcat.Catalog
	logger *zap.Logger

	mu        sync.Mutex
	last      *reversidto.BoardStatus
	blackName string
	whiteName string
}

func NewSnapshot(path string, cat *msgcat.Catalog, logger *zap.Logger) *Snapshot {
	if cat == nil {
		cat = msgcat.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshot{path: path, cat: cat, logger: logger}
}

func (s *Snapshot) Path() string { return s.path }

func (s *Snapshot) Render(st *reversidto.BoardStatus, blackName, whiteName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last, s.blackName, s.whiteName = st, blackName, whiteName
	s.writeLocked("")
}

func (s *Snapshot) DrawPassMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	side := reversidto.Side("")
	if s.last != nil {
		side = s.last.NextTurn
	}
	s.writeLocked(s.cat.Text("game.pass", map[string]any{"Side": side}))
}

func (s *Snapshot) ShowEndGameModal(blackScore, whiteScore int, blackName, whiteName, record string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blackName, s.whiteName = blackName, whiteName
	s.writeLocked(s.cat.Text("game.over", map[string]any{
		"BlackName": blackName, "Black": blackScore, "White": whiteScore, "WhiteName": whiteName,
	}))
}

func (s *Snapshot) Notify(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(s.cat.Text("status.error", map[string]any{"Err": err.Error()}))
}

func (s *Snapshot) options(banner string) ImageOptions {
	opts := ImageOptions{
		Title:  s.cat.Text("board.title", map[string]any{"Black": s.blackName, "White": s.whiteName}),
		Banner: banner,
	}
	st := s.last
	if st == nil {
		opts.Turn = s.cat.Text("board.blank", nil)
		return opts
	}
	opts.Score = fmt.Sprintf("%d : %d", st.BlackCount(), st.WhiteCount())
	name := s.blackName
	if st.NextTurn == reversidto.White {
		name = s.whiteName
	}
	opts.Turn = s.cat.Text("board.turn", map[string]any{"Name": name, "Side": st.NextTurn})
	return opts
}

func (s *Snapshot) writeLocked(banner string) {
	data, err := RenderPNG(context.Background(), s.last, s.options(banner))
	if err != nil {
		s.logger.Warn("snapshot render failed", zap.Error(err))
		return
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		s.logger.Warn("snapshot write failed", zap.String("path", s.path), zap.Error(err))
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.png")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
