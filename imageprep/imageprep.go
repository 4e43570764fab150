// Package imageprep 把上传的图片字节解码并预处理为模型输入张量：
// 转 RGB、双线性缩放到 W×H、像素值缩放到 [0,1]，输出 NHWC 布局 [1, H, W, 3]。
package imageprep

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/rushteam/inferkit/core"
)

const (
	DefaultWidth  = 224
	DefaultHeight = 224
)

// Preprocessor 图像预处理器，构造后只读
type Preprocessor struct {
	Width  int
	Height int
}

// New 创建预处理器，尺寸 <= 0 时使用默认 224×224
func New(width, height int) *Preprocessor {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Preprocessor{Width: width, Height: height}
}

// Decode 解码图片字节，返回图片格式名（jpeg / png / gif / webp / bmp）
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", core.NewDomainError(core.ModuleImage, core.ErrorCodeInvalidInput, "empty image upload")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", core.WrapDomainError(core.ModuleImage, core.ErrorCodeInvalidInput, "cannot decode image", err)
	}
	return img, format, nil
}

// Tensor 解码并预处理图片
func (p *Preprocessor) Tensor(data []byte) (*core.Tensor, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return p.FromImage(img), nil
}

// FromImage 把已解码的图片转换为张量
func (p *Preprocessor) FromImage(img image.Image) *core.Tensor {
	dst := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	data := make([]float32, 0, p.Width*p.Height*3)
	for y := 0; y < p.Height; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+p.Width*4]
		for x := 0; x < p.Width; x++ {
			px := row[x*4 : x*4+3]
			data = append(data, float32(px[0])/255, float32(px[1])/255, float32(px[2])/255)
		}
	}
	return &core.Tensor{Shape: []int{1, p.Height, p.Width, 3}, Data: data}
}

// String 描述预处理配置
func (p *Preprocessor) String() string {
	return fmt.Sprintf("rgb %dx%d /255", p.Width, p.Height)
}
