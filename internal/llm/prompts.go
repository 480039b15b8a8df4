package llm

const planSystem = `You are a research assistant. You plan web research before it happens.`

const planPrompt = `Write a short research plan (3 to 5 numbered steps) for answering:

%s

Name the kinds of sources worth reading and the facts to look for. No preamble.`

const relevanceSystem = `You judge whether a text is relevant to a research question. Answer with a single word: YES or NO.`

const relevancePrompt = `Question: %s

Text:
"""
%s
"""

Is the text relevant to the question? Answer YES or NO.`

const keyPointsSystem = `You extract factual key points from source text. Each point is one self-contained sentence. Never invent facts that are not in the text.`

const keyPointsPrompt = `Extract at most %d key points from the text below.
Return them as a bulleted list, one point per line starting with "- ".

Text:
"""
%s
"""`

const synthesisSystem = `You write concise, well-structured research summaries in Markdown. Use only the supplied points.`

const synthesisPrompt = `Research question: %s

Points gathered from sources:
%s
Write a synthesis that answers the question. Group related points, note disagreements, and keep it under 400 words.`
