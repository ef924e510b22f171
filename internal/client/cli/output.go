// Package cli 终端输出工具
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorWarning = color.New(color.FgYellow).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
	colorFaint   = color.New(color.Faint).SprintFunc()
)

// Output 提供结构化的输出接口
type Output struct {
	w       io.Writer
	noColor bool
}

// NewOutput 创建输出到 stdout 的工具
func NewOutput(noColor bool) *Output {
	return NewOutputTo(os.Stdout, noColor)
}

// NewOutputTo 创建输出到 w 的工具
func NewOutputTo(w io.Writer, noColor bool) *Output {
	color.NoColor = noColor
	return &Output{w: w, noColor: noColor}
}

// IsTerminal stdout 是否为终端，非终端时应禁用颜色
func IsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Success 输出成功消息
func (o *Output) Success(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorSuccess("✓"), fmt.Sprintf(format, args...))
}

// Error 输出错误消息
func (o *Output) Error(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorError("✗"), fmt.Sprintf(format, args...))
}

// Warning 输出警告消息
func (o *Output) Warning(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorWarning("!"), fmt.Sprintf(format, args...))
}

// Info 输出信息消息
func (o *Output) Info(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorInfo("i"), fmt.Sprintf(format, args...))
}

// Plain 输出普通消息（无颜色）
func (o *Output) Plain(format string, args ...interface{}) {
	fmt.Fprintf(o.w, format+"\n", args...)
}

// Header 输出标题
func (o *Output) Header(title string) {
	fmt.Fprintln(o.w)
	fmt.Fprintln(o.w, colorBold(title))
	fmt.Fprintln(o.w, strings.Repeat("━", len(title)))
}

// KeyValue 输出键值对
func (o *Output) KeyValue(key, value string) {
	fmt.Fprintf(o.w, "  %-16s %s\n", colorBold(key+":"), value)
}

// Table 输出表格
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable 创建新表格
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &Table{headers: headers, widths: widths}
}

// AddRow 添加行，多余的列被忽略
func (t *Table) AddRow(cols ...string) {
	for i, col := range cols {
		if i < len(t.widths) && len(col) > t.widths[i] {
			t.widths[i] = len(col)
		}
	}
	t.rows = append(t.rows, cols)
}

// Len 数据行数
func (t *Table) Len() int {
	return len(t.rows)
}

// Render 渲染表格
func (t *Table) Render(o *Output) {
	// 表头先填充再着色，颜色控制符不计入宽度
	for i, header := range t.headers {
		fmt.Fprintf(o.w, "%s  ", colorBold(fmt.Sprintf("%-*s", t.widths[i], header)))
	}
	fmt.Fprintln(o.w)

	total := 0
	for _, w := range t.widths {
		total += w + 2
	}
	fmt.Fprintln(o.w, colorFaint(strings.Repeat("─", min(total, 120))))

	for _, row := range t.rows {
		for i, col := range row {
			if i < len(t.widths) {
				fmt.Fprintf(o.w, "%-*s  ", t.widths[i], col)
			}
		}
		fmt.Fprintln(o.w)
	}
}
