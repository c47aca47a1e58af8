//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default 默认任务：显示帮助信息
func Default() {
	fmt.Println("ChainScore 构建系统")
	fmt.Println("==================")
	fmt.Println("可用任务:")
	fmt.Println("  mage build     - 构建所有二进制文件")
	fmt.Println("  mage test      - 运行所有测试")
	fmt.Println("  mage lint      - 运行代码检查")
	fmt.Println("  mage coverage  - 生成测试覆盖率报告")
	fmt.Println("  mage clean     - 清理构建产物")
}

// Build 构建所有二进制文件
func Build() error {
	mg.Deps(Clean)

	targets := []struct {
		name string
		path string
	}{
		{"dashboard_api", "./cmd/dashboard_api"},
		{"telemetry_collector", "./cmd/telemetry_collector"},
	}

	if err := os.MkdirAll("bin", 0o755); err != nil {
		return err
	}

	for _, t := range targets {
		fmt.Printf("构建 %s...\n", t.name)
		if err := sh.Run("go", "build", "-o", filepath.Join("bin", t.name), t.path); err != nil {
			return fmt.Errorf("build %s failed: %w", t.name, err)
		}
	}

	fmt.Println("构建完成")
	return nil
}

// Test 运行所有测试
func Test() error {
	return sh.RunV("go", "test", "-race", "./pkg/...")
}

// Lint 运行代码检查
func Lint() error {
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	return sh.RunV("gofmt", "-l", "pkg", "cmd")
}

// Coverage 生成测试覆盖率报告
func Coverage() error {
	if err := sh.RunV("go", "test", "-coverprofile=coverage.out", "./pkg/..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-html=coverage.out", "-o", "coverage.html")
}

// Clean 清理构建产物
func Clean() error {
	for _, path := range []string{"bin", "coverage.out", "coverage.html"} {
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	return nil
}
